package store

import (
	"context"
	"sync"

	"cipherchat/internal/conversation"
	"cipherchat/internal/model"
)

type (
	// Memory is the default Store. History survives only for process
	// uptime, which is all the relay guarantees.
	Memory struct {
		mu            sync.Mutex
		conversations map[conversation.ID][]model.Envelope
		seen          map[conversation.ID]map[string]struct{}
	}
)

func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[conversation.ID][]model.Envelope),
		seen:          make(map[conversation.ID]map[string]struct{}),
	}
}

func (m *Memory) Append(_ context.Context, env model.Envelope) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.seen[env.ConversationID]
	if !ok {
		ids = make(map[string]struct{})
		m.seen[env.ConversationID] = ids
	}
	if _, dup := ids[env.ID]; dup {
		return false, nil
	}

	ids[env.ID] = struct{}{}
	m.conversations[env.ConversationID] = append(m.conversations[env.ConversationID], env)
	return true, nil
}

func (m *Memory) History(_ context.Context, id conversation.ID) ([]model.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.conversations[id]
	out := make([]model.Envelope, len(history))
	copy(out, history)
	return out, nil
}

func (m *Memory) ForUser(_ context.Context, userID string) (model.InitialMessages, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(model.InitialMessages)
	for id, history := range m.conversations {
		if !id.Contains(userID) {
			continue
		}
		cp := make([]model.Envelope, len(history))
		copy(cp, history)
		out[id] = cp
	}
	return out, nil
}
