package model

import "fmt"

// Status tracks an envelope through its delivery lifecycle. Transitions move
// forward only; Failed may be entered from any non-terminal state and is
// terminal, as is Read.
type Status string

const (
	StatusPending   Status = "pending-send"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

func (s Status) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanAdvance reports whether the transition s -> next is allowed.
func (s Status) CanAdvance(next Status) bool {
	if !s.Valid() || !next.Valid() || s == next {
		return false
	}
	if s == StatusFailed || s == StatusRead {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// Advance returns next if the transition is legal and an error otherwise.
func (s Status) Advance(next Status) (Status, error) {
	if !s.CanAdvance(next) {
		return s, fmt.Errorf("illegal status transition %q -> %q", s, next)
	}
	return next, nil
}
