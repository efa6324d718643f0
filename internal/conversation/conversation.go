package conversation

import (
	"fmt"
	"strings"
)

// Separator joins the two participant ids in the wire form of an ID.
// Participant ids must not contain it.
const Separator = ":"

// ID identifies the conversation between an unordered pair of users.
// Both participants compute the same value regardless of argument order.
type ID struct {
	low, high string
}

func New(a, b string) ID {
	if a > b {
		a, b = b, a
	}
	return ID{low: a, high: b}
}

func Parse(s string) (ID, error) {
	parts := strings.Split(s, Separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ID{}, fmt.Errorf("malformed conversation id %q", s)
	}
	return New(parts[0], parts[1]), nil
}

func (id ID) Low() string  { return id.low }
func (id ID) High() string { return id.high }

func (id ID) Contains(userID string) bool {
	return userID != "" && (id.low == userID || id.high == userID)
}

// Peer returns the participant that is not selfID.
func (id ID) Peer(selfID string) (string, error) {
	switch selfID {
	case id.low:
		return id.high, nil
	case id.high:
		return id.low, nil
	}
	return "", fmt.Errorf("user %q is not part of conversation %q", selfID, id.String())
}

func (id ID) String() string {
	return id.low + Separator + id.high
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
