package directory

import (
	"context"

	"cipherchat/internal/model"
)

type (
	// Split keeps the owned identity local while resolving counterparts
	// remotely, so private key material never depends on the remote side.
	Split struct {
		Local  Provisioner
		Remote Directory
	}
)

func (s Split) Self(ctx context.Context, id string) (model.User, error) {
	return s.Local.Self(ctx, id)
}

func (s Split) PublicKey(ctx context.Context, id string) ([]byte, error) {
	return s.Remote.PublicKey(ctx, id)
}

func (s Split) Contacts(ctx context.Context, selfID string) ([]model.User, error) {
	return s.Remote.Contacts(ctx, selfID)
}
