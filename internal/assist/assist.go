package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxReplies caps the number of suggestions surfaced to the user.
const MaxReplies = 3

type (
	// Transformer is the AI text-transform collaborator. It operates on
	// locally decrypted plaintext only and never sees ciphertext or keys;
	// the sender applies it before encryption.
	Transformer interface {
		SmartReplies(ctx context.Context, history []string) ([]string, error)
		Rewrite(ctx context.Context, text, tone string) (string, error)
	}

	// HTTPClient talks to an external suggestion service over JSON.
	HTTPClient struct {
		base   string
		client *http.Client
	}

	repliesRequest struct {
		History []string `json:"history"`
	}
	repliesResponse struct {
		Replies []string `json:"replies"`
	}
	rewriteRequest struct {
		Text string `json:"text"`
		Tone string `json:"tone"`
	}
	rewriteResponse struct {
		Text string `json:"text"`
	}
)

func NewHTTPClient(base string) *HTTPClient {
	return &HTTPClient{
		base:   base,
		client: http.DefaultClient,
	}
}

func (c *HTTPClient) SmartReplies(ctx context.Context, history []string) ([]string, error) {
	var resp repliesResponse
	if err := c.post(ctx, "/replies", repliesRequest{History: history}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Replies) > MaxReplies {
		resp.Replies = resp.Replies[:MaxReplies]
	}
	return resp.Replies, nil
}

func (c *HTTPClient) Rewrite(ctx context.Context, text, tone string) (string, error) {
	var resp rewriteResponse
	if err := c.post(ctx, "/rewrite", rewriteRequest{Text: text, Tone: tone}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("assist request %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
