package relay

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"cipherchat/internal/conversation"
	"cipherchat/internal/model"
	"cipherchat/internal/store"
	"cipherchat/internal/utils/log"
)

type (
	inbound struct {
		from  *client
		frame model.Frame
	}

	// Registry owns the connection map and the history store. All state is
	// confined to the Run goroutine, which consumes the channels below;
	// duplicate checks and appends are therefore serialized per relay.
	Registry struct {
		store store.Store

		clients    map[string]*client
		register   chan *client
		unregister chan *client
		inbound    chan inbound
		done       chan struct{}
	}
)

func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store:      st,
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
	}
}

// Run processes connection and frame events until ctx is cancelled. It is
// the only goroutine touching r.clients.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for id, c := range r.clients {
				delete(r.clients, id)
				r.closeClient(c)
			}
			close(r.done)
			return

		case c := <-r.register:
			// At most one active socket per user.
			if old, ok := r.clients[c.userID]; ok {
				log.Info("replacing connection", zap.String("userID", c.userID))
				r.closeClient(old)
			}
			r.clients[c.userID] = c
			r.pushInitial(ctx, c)

		case c := <-r.unregister:
			if r.clients[c.userID] == c {
				delete(r.clients, c.userID)
				r.closeClient(c)
			}

		case in := <-r.inbound:
			r.handleFrame(ctx, in)
		}
	}
}

func (r *Registry) pushInitial(ctx context.Context, c *client) {
	histories, err := r.store.ForUser(ctx, c.userID)
	if err != nil {
		log.Error("loading history failed", zap.String("userID", c.userID), zap.Error(err))
		histories = model.InitialMessages{}
	}

	frame, err := model.NewFrame(model.FrameInitialMessages, histories)
	if err != nil {
		log.Error("building initialMessages failed", zap.Error(err))
		return
	}
	r.trySend(c, frame)
}

func (r *Registry) handleFrame(ctx context.Context, in inbound) {
	// A bad frame never takes the connection down; log and drop.
	if in.frame.Type != model.FrameSendMessage {
		log.Debug("dropping frame of unknown type", zap.String("type", in.frame.Type))
		return
	}

	var payload model.SendMessagePayload
	if err := json.Unmarshal(in.frame.Payload, &payload); err != nil {
		log.Error("dropping malformed sendMessage payload", zap.Error(err))
		return
	}

	env := payload.Message
	switch {
	case env.ID == "":
		log.Error("dropping envelope without id", zap.String("sender", in.from.userID))
		return
	case env.SenderID != in.from.userID:
		log.Error("dropping envelope with forged sender",
			zap.String("claimed", env.SenderID), zap.String("actual", in.from.userID))
		return
	case env.ConversationID != conversation.New(in.from.userID, payload.RecipientID):
		log.Error("dropping envelope with mismatched conversation",
			zap.String("conversationID", env.ConversationID.String()),
			zap.String("recipientID", payload.RecipientID))
		return
	}

	appended, err := r.store.Append(ctx, env)
	if err != nil {
		log.Error("storing envelope failed", zap.String("id", env.ID), zap.Error(err))
		return
	}

	if appended {
		// Best-effort immediate forward, verbatim, to an online recipient.
		if rc, ok := r.clients[payload.RecipientID]; ok {
			frame, err := model.NewFrame(model.FrameNewMessage, env)
			if err == nil {
				r.trySend(rc, frame)
			}
		}
	}

	// The sender is acknowledged regardless of recipient delivery, and a
	// duplicate resend is acked again (at-least-once append semantics).
	ack := model.AckPayload{
		ID:             env.ID,
		ConversationID: env.ConversationID,
		Status:         model.StatusSent,
	}
	frame, err := model.NewFrame(model.FrameMessageAck, ack)
	if err != nil {
		log.Error("building ack failed", zap.Error(err))
		return
	}
	r.trySend(in.from, frame)
}

// trySend never blocks: a slow or dead peer must not stall the registry.
func (r *Registry) trySend(c *client, frame model.Frame) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn("dropping frame for slow peer", zap.String("userID", c.userID))
	}
}

func (r *Registry) closeClient(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
