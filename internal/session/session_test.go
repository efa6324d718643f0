package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherchat/internal/conversation"
	"cipherchat/internal/cryptographic/encryption"
	"cipherchat/internal/directory"
	"cipherchat/internal/model"
	"cipherchat/internal/relay"
	"cipherchat/internal/store"
)

func startRelay(t *testing.T) (wsURL string, st *store.Memory, dir *directory.Static) {
	t.Helper()

	st = store.NewMemory()
	registry := relay.NewRegistry(st)
	dir, err := directory.NewStatic("test-seed", directory.DefaultUsers())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx)

	srv := httptest.NewServer(relay.NewServer("", dir, registry).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", st, dir
}

func connect(t *testing.T, wsURL string, dir *directory.Static, userID string) *Session {
	t.Helper()

	self, err := dir.Self(context.Background(), userID)
	require.NoError(t, err)

	s := New(self, dir, wsURL)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func TestConnectRejectsBadURL(t *testing.T) {
	dir, err := directory.NewStatic("test-seed", directory.DefaultUsers())
	require.NoError(t, err)
	self, err := dir.Self(context.Background(), "user-1")
	require.NoError(t, err)

	for _, u := range []string{"http://localhost:9090/ws", "not a url at all", ""} {
		s := New(self, dir, u)
		require.ErrorIs(t, s.Connect(context.Background()), ErrConnection)
	}

	s := New(self, dir, "ws://127.0.0.1:1/ws")
	require.ErrorIs(t, s.Connect(context.Background()), ErrConnection)
}

func TestSendFailsClosedWithoutKey(t *testing.T) {
	wsURL, st, dir := startRelay(t)
	s := connect(t, wsURL, dir, "user-1")

	// user-9 is not in the directory, so no key was derived.
	_, err := s.SendMessage("hi", "user-9")
	require.ErrorIs(t, err, ErrNoSharedKey)

	// Nothing was transmitted or applied locally.
	require.Empty(t, s.History("user-9"))
	history, err := st.History(context.Background(), conversation.New("user-1", "user-9"))
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestEndToEndDelivery(t *testing.T) {
	wsURL, _, dir := startRelay(t)
	sender := connect(t, wsURL, dir, "user-1")
	recipient := connect(t, wsURL, dir, "user-2")

	env, err := sender.SendMessage("hi", "user-2")
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, env.Status)
	require.NotEqual(t, "hi", env.Ciphertext)

	// The recipient receives the forwarded envelope and decrypts it with
	// its own independently derived key.
	eventually(t, func() bool {
		return len(recipient.History("user-1")) == 1
	}, "recipient never received the message")

	got := recipient.History("user-1")[0]
	require.Equal(t, env.ID, got.ID)
	require.Equal(t, env.Ciphertext, got.Ciphertext)

	plain, err := recipient.Plaintext(got)
	require.NoError(t, err)
	require.Equal(t, "hi", plain)

	// The relay's ack reconciles the optimistic pending-send copy.
	eventually(t, func() bool {
		h := sender.History("user-2")
		return len(h) == 1 && h[0].Status == model.StatusSent
	}, "sender's pending send was never reconciled")
}

func TestOfflineBacklog(t *testing.T) {
	wsURL, _, dir := startRelay(t)

	sender := connect(t, wsURL, dir, "user-1")
	_, err := sender.SendMessage("hi", "user-2")
	require.NoError(t, err)
	eventually(t, func() bool {
		h := sender.History("user-2")
		return len(h) == 1 && h[0].Status == model.StatusSent
	}, "relay never acked the send")

	// user-2 connects later and finds the backlog in initialMessages.
	recipient := connect(t, wsURL, dir, "user-2")
	eventually(t, func() bool {
		return len(recipient.History("user-1")) == 1
	}, "backlog was not delivered on connect")

	plain, err := recipient.Plaintext(recipient.History("user-1")[0])
	require.NoError(t, err)
	require.Equal(t, "hi", plain)
}

func TestIdentitySwitchClearsState(t *testing.T) {
	wsURL, _, dir := startRelay(t)

	old := connect(t, wsURL, dir, "user-2")
	_, err := old.SendMessage("secret", "user-1")
	require.NoError(t, err)
	require.NotZero(t, old.keys.Len())
	require.NotEmpty(t, old.History("user-1"))

	// Switching identities: the old session is torn down first.
	old.Close()
	require.Zero(t, old.keys.Len())
	old.mu.Lock()
	require.Empty(t, old.history)
	old.mu.Unlock()

	next := connect(t, wsURL, dir, "user-3")
	require.Empty(t, next.History("user-2"))
	_, ok := next.keys.Get(conversation.New("user-3", "user-1"))
	require.True(t, ok, "new identity derives its own keys")
}

func TestPlaintextWrongKeyFails(t *testing.T) {
	wsURL, _, dir := startRelay(t)
	s := connect(t, wsURL, dir, "user-1")

	// An envelope sealed under an unrelated key must fail authentication,
	// not decrypt to something else.
	otherKey := make([]byte, 32)
	for i := range otherKey {
		otherKey[i] = byte(i)
	}
	blob, err := encryption.Encrypt(otherKey, "tampered")
	require.NoError(t, err)

	_, err = s.Plaintext(model.Envelope{
		ID:             "m1",
		SenderID:       "user-2",
		Ciphertext:     blob,
		ConversationID: conversation.New("user-1", "user-2"),
	})
	require.True(t, errors.Is(err, encryption.ErrDecrypt))
}

func TestMergeInitialKeepsUnackedLocalSends(t *testing.T) {
	dir, err := directory.NewStatic("test-seed", directory.DefaultUsers())
	require.NoError(t, err)
	self, err := dir.Self(context.Background(), "user-1")
	require.NoError(t, err)

	s := New(self, dir, "ws://unused/ws")
	id := conversation.New("user-1", "user-2")

	s.append(model.Envelope{ID: "m1", SenderID: "user-1", Status: model.StatusPending, ConversationID: id})
	s.append(model.Envelope{ID: "m2", SenderID: "user-1", Status: model.StatusPending, ConversationID: id})

	// The relay knows m1 (acked earlier) plus a peer message m0.
	s.mergeInitial(model.InitialMessages{
		id: {
			{ID: "m0", SenderID: "user-2", Status: model.StatusSent, ConversationID: id},
			{ID: "m1", SenderID: "user-1", Status: model.StatusSent, ConversationID: id},
		},
	})

	h := s.History("user-2")
	require.Len(t, h, 3)
	require.Equal(t, "m0", h[0].ID)
	require.Equal(t, "m1", h[1].ID)
	require.Equal(t, model.StatusSent, h[1].Status, "relay copy is authoritative")
	require.Equal(t, "m2", h[2].ID)
	require.Equal(t, model.StatusPending, h[2].Status, "unacked local send survives the merge")
}

func TestSetStatusIgnoresRegressions(t *testing.T) {
	dir, err := directory.NewStatic("test-seed", directory.DefaultUsers())
	require.NoError(t, err)
	self, err := dir.Self(context.Background(), "user-1")
	require.NoError(t, err)

	s := New(self, dir, "ws://unused/ws")
	id := conversation.New("user-1", "user-2")
	s.append(model.Envelope{ID: "m1", SenderID: "user-1", Status: model.StatusDelivered, ConversationID: id})

	s.setStatus(id, "m1", model.StatusSent)
	require.Equal(t, model.StatusDelivered, s.History("user-2")[0].Status)

	s.setStatus(id, "m1", model.StatusRead)
	require.Equal(t, model.StatusRead, s.History("user-2")[0].Status)
}

func TestDuplicateForwardAppendsOnce(t *testing.T) {
	dir, err := directory.NewStatic("test-seed", directory.DefaultUsers())
	require.NoError(t, err)
	self, err := dir.Self(context.Background(), "user-1")
	require.NoError(t, err)

	s := New(self, dir, "ws://unused/ws")
	id := conversation.New("user-1", "user-2")
	env := model.Envelope{ID: "m1", SenderID: "user-2", Status: model.StatusSent, ConversationID: id}

	s.append(env)
	s.append(env)
	require.Len(t, s.History("user-2"), 1)
}
