package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cipherchat/internal/conversation"
	"cipherchat/internal/cryptographic/dh"
	"cipherchat/internal/cryptographic/encryption"
	"cipherchat/internal/directory"
	"cipherchat/internal/model"
	"cipherchat/internal/utils/log"
)

var (
	// ErrConnection covers bad relay URLs and handshake failures. The
	// session returns to a disconnected state.
	ErrConnection = errors.New("relay connection failed")

	// ErrNoSharedKey means the send fails closed: without a cached key for
	// the conversation nothing is transmitted.
	ErrNoSharedKey = errors.New("no shared key for conversation")
)

type (
	// Session is one client identity's connection to the relay: its cached
	// per-conversation keys, its local history copy, and the socket.
	// A Session is single-use; switching identities means Close and a
	// fresh Session, so no key or plaintext survives the switch.
	Session struct {
		self     model.User
		dir      directory.Directory
		relayURL string

		keys *conversation.Keyring

		mu      sync.Mutex
		history map[conversation.ID][]model.Envelope

		conn    *websocket.Conn
		writeMu sync.Mutex

		onUpdate func()

		closeOnce  sync.Once
		readerDone chan struct{}
	}

	Option func(*Session)
)

// WithUpdateHook registers a callback invoked after every state change
// caused by a relay frame. The UI redraws from it.
func WithUpdateHook(fn func()) Option {
	return func(s *Session) { s.onUpdate = fn }
}

func New(self model.User, dir directory.Directory, relayURL string, opts ...Option) *Session {
	s := &Session{
		self:     self,
		dir:      dir,
		relayURL: relayURL,
		keys:     conversation.NewKeyring(),
		history:  make(map[conversation.ID][]model.Envelope),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Self() model.User { return s.self }

// Connect dials the relay, derives shared keys for every known counterpart
// and starts consuming relay frames.
func (s *Session) Connect(ctx context.Context) error {
	u, err := url.Parse(s.relayURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: invalid relay URL %q", ErrConnection, s.relayURL)
	}
	params := url.Values{
		"userId": []string{s.self.ID},
	}
	u.RawQuery = params.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	s.conn = conn

	s.establishKeys(ctx)

	s.readerDone = make(chan struct{})
	go s.readLoop()
	return nil
}

// establishKeys derives one shared key per counterpart. Derivations run
// independently; a failure disables that one conversation and nothing else.
func (s *Session) establishKeys(ctx context.Context) {
	contacts, err := s.dir.Contacts(ctx, s.self.ID)
	if err != nil {
		log.Error("listing contacts failed", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, contact := range contacts {
		wg.Add(1)
		go func(contact model.User) {
			defer wg.Done()
			key, err := dh.DeriveSharedKey(s.self.PrivateKey, contact.PublicKey)
			if err != nil {
				log.Error("key derivation failed, conversation unusable",
					zap.String("contactID", contact.ID), zap.Error(err))
				return
			}
			s.keys.Put(conversation.New(s.self.ID, contact.ID), key)
		}(contact)
	}
	wg.Wait()
}

// SendMessage encrypts text for recipientID, applies it optimistically to
// local history as pending-send, and dispatches it to the relay. The local
// copy advances to sent when the relay's ack frame arrives.
func (s *Session) SendMessage(text, recipientID string) (model.Envelope, error) {
	if s.conn == nil {
		return model.Envelope{}, fmt.Errorf("%w: not connected", ErrConnection)
	}

	id := conversation.New(s.self.ID, recipientID)
	key, ok := s.keys.Get(id)
	if !ok {
		return model.Envelope{}, fmt.Errorf("%w: %s", ErrNoSharedKey, id)
	}

	blob, err := encryption.Encrypt(key, text)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("encrypt message: %w", err)
	}

	env := model.Envelope{
		ID:             uuid.NewString(),
		SenderID:       s.self.ID,
		Ciphertext:     blob,
		Timestamp:      time.Now().UnixMilli(),
		Status:         model.StatusPending,
		ConversationID: id,
	}

	wire := env
	wire.Status = model.StatusSent
	frame, err := model.NewFrame(model.FrameSendMessage, model.SendMessagePayload{
		Message:     wire,
		RecipientID: recipientID,
	})
	if err != nil {
		return model.Envelope{}, err
	}

	s.append(env)

	s.writeMu.Lock()
	err = s.conn.WriteJSON(&frame)
	s.writeMu.Unlock()
	if err != nil {
		s.setStatus(env.ConversationID, env.ID, model.StatusFailed)
		return env, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return env, nil
}

// History returns a copy of the local history with the given peer, in the
// order envelopes arrived at this controller.
func (s *Session) History(peerID string) []model.Envelope {
	id := conversation.New(s.self.ID, peerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Envelope, len(s.history[id]))
	copy(out, s.history[id])
	return out
}

// Plaintext decrypts an envelope for display. Decryption is deferred to
// render time; failures are per-message and the caller shows a fixed
// placeholder instead.
func (s *Session) Plaintext(env model.Envelope) (string, error) {
	key, ok := s.keys.Get(env.ConversationID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSharedKey, env.ConversationID)
	}
	return encryption.Decrypt(key, env.Ciphertext)
}

// Close tears the session down deterministically: the socket is closed, the
// read loop joined, cached keys zeroed and local history dropped. It is safe
// to start a new session for another identity as soon as Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
			<-s.readerDone
		}
		s.keys.Clear()

		s.mu.Lock()
		s.history = make(map[conversation.ID][]model.Envelope)
		s.mu.Unlock()
	})
}

func (s *Session) readLoop() {
	defer close(s.readerDone)

	for {
		var frame model.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			log.Debug("session socket closed", zap.Error(err))
			return
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(frame model.Frame) {
	switch frame.Type {
	case model.FrameInitialMessages:
		var initial model.InitialMessages
		if err := json.Unmarshal(frame.Payload, &initial); err != nil {
			log.Error("malformed initialMessages frame", zap.Error(err))
			return
		}
		s.mergeInitial(initial)

	case model.FrameNewMessage:
		var env model.Envelope
		if err := json.Unmarshal(frame.Payload, &env); err != nil {
			log.Error("malformed newMessage frame", zap.Error(err))
			return
		}
		s.append(env)

	case model.FrameMessageAck:
		var ack model.AckPayload
		if err := json.Unmarshal(frame.Payload, &ack); err != nil {
			log.Error("malformed messageAck frame", zap.Error(err))
			return
		}
		s.setStatus(ack.ConversationID, ack.ID, ack.Status)

	default:
		log.Debug("ignoring frame of unknown type", zap.String("type", frame.Type))
	}

	s.notify()
}

// mergeInitial adopts the relay's copy as authoritative and re-appends any
// local envelope the relay does not know yet (optimistic sends that were
// never acked).
func (s *Session) mergeInitial(initial model.InitialMessages) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[conversation.ID][]model.Envelope, len(initial))
	for id, envs := range initial {
		merged[id] = envs
	}
	for id, local := range s.history {
		known := make(map[string]struct{}, len(merged[id]))
		for _, env := range merged[id] {
			known[env.ID] = struct{}{}
		}
		for _, env := range local {
			if _, ok := known[env.ID]; !ok {
				merged[id] = append(merged[id], env)
			}
		}
	}
	s.history = merged
}

func (s *Session) append(env model.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.history[env.ConversationID] {
		if existing.ID == env.ID {
			return
		}
	}
	s.history[env.ConversationID] = append(s.history[env.ConversationID], env)
}

func (s *Session) setStatus(id conversation.ID, envID string, status model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.history[id]
	for i := range history {
		if history[i].ID != envID {
			continue
		}
		next, err := history[i].Status.Advance(status)
		if err != nil {
			log.Debug("ignoring status regression", zap.String("id", envID), zap.Error(err))
			return
		}
		history[i].Status = next
		return
	}
}

func (s *Session) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}
