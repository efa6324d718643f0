package directory

import (
	"context"
	"errors"
	"fmt"

	"cipherchat/internal/cryptographic/dh"
	"cipherchat/internal/model"
)

var ErrUnknownUser = errors.New("unknown user")

type (
	// Directory resolves counterpart identities. Counterparts expose only
	// their public key.
	Directory interface {
		PublicKey(ctx context.Context, id string) ([]byte, error)
		Contacts(ctx context.Context, selfID string) ([]model.User, error)
	}

	// Provisioner additionally hands out the local user's own key pair.
	// Only directory implementations living inside the owning client may
	// provide private keys.
	Provisioner interface {
		Directory
		Self(ctx context.Context, id string) (model.User, error)
	}

	StaticUser struct {
		ID   string
		Name string
	}

	// Static provisions a fixed user set once at startup. Key pairs are
	// derived deterministically from the seed, so every process configured
	// with the same seed and user list computes the same directory.
	Static struct {
		users map[string]model.User
		order []string
	}
)

// DefaultUsers mirrors the demo roster the system ships with.
func DefaultUsers() []StaticUser {
	return []StaticUser{
		{ID: "user-0", Name: "Ich"},
		{ID: "user-1", Name: "Lena"},
		{ID: "user-2", Name: "Max"},
		{ID: "user-3", Name: "Sophia"},
	}
}

func NewStatic(seed string, users []StaticUser) (*Static, error) {
	s := &Static{users: make(map[string]model.User, len(users))}
	for _, u := range users {
		if u.ID == "" {
			return nil, errors.New("static directory: empty user id")
		}
		if _, dup := s.users[u.ID]; dup {
			return nil, fmt.Errorf("static directory: duplicate user id %q", u.ID)
		}
		priv, pub := dh.KeyPairFromSeed([]byte(seed + "/" + u.ID))
		s.users[u.ID] = model.User{
			ID:         u.ID,
			Name:       u.Name,
			PublicKey:  pub[:],
			PrivateKey: priv[:],
		}
		s.order = append(s.order, u.ID)
	}
	return s, nil
}

func (s *Static) Self(_ context.Context, id string) (model.User, error) {
	user, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("%w: %q", ErrUnknownUser, id)
	}
	return user, nil
}

func (s *Static) PublicKey(_ context.Context, id string) ([]byte, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, id)
	}
	return user.PublicKey, nil
}

func (s *Static) Contacts(_ context.Context, selfID string) ([]model.User, error) {
	out := make([]model.User, 0, len(s.order))
	for _, id := range s.order {
		if id == selfID {
			continue
		}
		u := s.users[id]
		u.PrivateKey = nil
		out = append(out, u)
	}
	return out, nil
}
