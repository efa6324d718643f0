package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherchat/internal/conversation"
	"cipherchat/internal/model"
)

func envelope(id, sender, recipient string) model.Envelope {
	return model.Envelope{
		ID:             id,
		SenderID:       sender,
		Ciphertext:     "opaque-" + id,
		Status:         model.StatusSent,
		ConversationID: conversation.New(sender, recipient),
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	added, err := m.Append(ctx, envelope("m1", "user-1", "user-2"))
	require.NoError(t, err)
	require.True(t, added)

	added, err = m.Append(ctx, envelope("m1", "user-1", "user-2"))
	require.NoError(t, err)
	require.False(t, added)

	history, err := m.History(ctx, conversation.New("user-1", "user-2"))
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestDuplicateIDsAllowedAcrossConversations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	added, err := m.Append(ctx, envelope("m1", "user-1", "user-2"))
	require.NoError(t, err)
	require.True(t, added)

	added, err = m.Append(ctx, envelope("m1", "user-1", "user-3"))
	require.NoError(t, err)
	require.True(t, added)
}

func TestHistoryPreservesArrivalOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 5; i++ {
		_, err := m.Append(ctx, envelope(fmt.Sprintf("m%d", i), "user-1", "user-2"))
		require.NoError(t, err)
	}

	history, err := m.History(ctx, conversation.New("user-1", "user-2"))
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, env := range history {
		require.Equal(t, fmt.Sprintf("m%d", i), env.ID)
	}
}

func TestForUserFiltersByParticipation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Append(ctx, envelope("m1", "user-1", "user-2"))
	require.NoError(t, err)
	_, err = m.Append(ctx, envelope("m2", "user-2", "user-3"))
	require.NoError(t, err)
	_, err = m.Append(ctx, envelope("m3", "user-3", "user-1"))
	require.NoError(t, err)

	forUser1, err := m.ForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, forUser1, 2)
	require.Contains(t, forUser1, conversation.New("user-1", "user-2"))
	require.Contains(t, forUser1, conversation.New("user-1", "user-3"))

	forUser4, err := m.ForUser(ctx, "user-4")
	require.NoError(t, err)
	require.Empty(t, forUser4)
}

func TestConcurrentAppendsSameID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Append(ctx, envelope("m1", "user-1", "user-2"))
		}()
	}
	wg.Wait()

	history, err := m.History(ctx, conversation.New("user-1", "user-2"))
	require.NoError(t, err)
	require.Len(t, history, 1)
}
