package store

import (
	"context"
	"encoding/json"
	"fmt"

	"cipherchat/internal/conversation"
	"cipherchat/internal/model"
	"cipherchat/internal/utils/log"

	"go.uber.org/zap"
)

type (
	// Commands is the slice of Redis the history backend needs.
	// *redis.RedisService satisfies it.
	Commands interface {
		RPush(ctx context.Context, key string, value ...any) error
		LRange(ctx context.Context, key string) ([]string, error)
		SAdd(ctx context.Context, key string, member any) (bool, error)
		SRem(ctx context.Context, key string, member any) error
		SMembers(ctx context.Context, key string) ([]string, error)
	}

	// Redis keeps conversation history in Redis lists. The per-conversation
	// id set gives the atomic duplicate check; a per-user set indexes the
	// conversations each user participates in.
	Redis struct {
		svc Commands
	}
)

func NewRedis(svc Commands) *Redis {
	return &Redis{svc: svc}
}

func historyKey(id conversation.ID) string {
	return fmt.Sprintf("conv:%s", id)
}

func seenKey(id conversation.ID) string {
	return fmt.Sprintf("conv-ids:%s", id)
}

func userKey(userID string) string {
	return fmt.Sprintf("user-convs:%s", userID)
}

func (r *Redis) Append(ctx context.Context, env model.Envelope) (bool, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("marshal envelope: %w", err)
	}

	// Index writes are idempotent and run first, so no failure below can
	// strand an envelope in history without its conversation being findable.
	id := env.ConversationID
	for _, participant := range []string{id.Low(), id.High()} {
		if _, err := r.svc.SAdd(ctx, userKey(participant), id.String()); err != nil {
			return false, fmt.Errorf("index conversation: %w", err)
		}
	}

	added, err := r.svc.SAdd(ctx, seenKey(id), env.ID)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if !added {
		return false, nil
	}

	if err := r.svc.RPush(ctx, historyKey(id), data); err != nil {
		return false, r.unmark(ctx, env, fmt.Errorf("append envelope: %w", err))
	}
	return true, nil
}

// unmark removes the duplicate marker set by a failed Append so that a
// resend of the same envelope is stored rather than reported as already
// seen. Without it the relay would ack a message it never kept.
func (r *Redis) unmark(ctx context.Context, env model.Envelope, cause error) error {
	if err := r.svc.SRem(ctx, seenKey(env.ConversationID), env.ID); err != nil {
		log.Error("removing duplicate marker failed, resends of this id will be lost",
			zap.String("id", env.ID), zap.Error(err))
	}
	return cause
}

func (r *Redis) History(ctx context.Context, id conversation.ID) ([]model.Envelope, error) {
	vals, err := r.svc.LRange(ctx, historyKey(id))
	if err != nil {
		return nil, err
	}

	out := make([]model.Envelope, 0, len(vals))
	for _, v := range vals {
		var env model.Envelope
		if err := json.Unmarshal([]byte(v), &env); err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}
		out = append(out, env)
	}
	return out, nil
}

func (r *Redis) ForUser(ctx context.Context, userID string) (model.InitialMessages, error) {
	members, err := r.svc.SMembers(ctx, userKey(userID))
	if err != nil {
		return nil, err
	}

	out := make(model.InitialMessages)
	for _, member := range members {
		id, err := conversation.Parse(member)
		if err != nil {
			log.Error("skipping malformed conversation index entry",
				zap.String("entry", member), zap.Error(err))
			continue
		}
		history, err := r.History(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = history
	}
	return out, nil
}
