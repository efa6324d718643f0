package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"cipherchat/internal/model"
)

type (
	// HTTPClient resolves counterpart public keys from the relay's
	// directory endpoints.
	HTTPClient struct {
		base   string
		client *http.Client
	}

	keyResponse struct {
		ID        string `json:"id"`
		PublicKey []byte `json:"publicKey"`
	}
)

func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		base:   base,
		client: http.DefaultClient,
	}
}

func (c *HTTPClient) PublicKey(ctx context.Context, id string) ([]byte, error) {
	var resp keyResponse
	if err := c.get(ctx, fmt.Sprintf("/keys/%s", url.PathEscape(id)), &resp); err != nil {
		return nil, err
	}
	return resp.PublicKey, nil
}

func (c *HTTPClient) Contacts(ctx context.Context, selfID string) ([]model.User, error) {
	var users []model.User
	path := "/users?exclude=" + url.QueryEscape(selfID)
	if err := c.get(ctx, path, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrUnknownUser, path)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory request %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
