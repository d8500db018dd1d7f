package emberd

import (
	"context"
	"fmt"

	"github.com/sammcvicker/ember/internal/embedder"
)

// ClientEmbedder adapts a Client into an embedder.Embedder, so callers
// configured for server mode (the use_server config key) can use the
// long-lived emberd process wherever an in-process Embedder is
// expected. Name/Dim/Fingerprint come from one Health round trip at
// construction time; a server that is restarted with a different
// model requires building a new ClientEmbedder.
type ClientEmbedder struct {
	client      *Client
	name        string
	dim         int
	fingerprint string
}

// NewClientEmbedder queries the server behind client for its identity
// and returns an Embedder backed by it.
func NewClientEmbedder(ctx context.Context, client *Client) (*ClientEmbedder, error) {
	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("emberd: querying server identity: %w", err)
	}
	return &ClientEmbedder{
		client:      client,
		name:        health.Model,
		dim:         health.Dim,
		fingerprint: health.Fingerprint,
	}, nil
}

func (c *ClientEmbedder) Name() string        { return c.name }
func (c *ClientEmbedder) Dim() int            { return c.dim }
func (c *ClientEmbedder) Fingerprint() string { return c.fingerprint }

func (c *ClientEmbedder) Embed(ctx context.Context, texts []string) ([]embedder.Vector, error) {
	raw, err := c.client.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]embedder.Vector, len(raw))
	for i, v := range raw {
		out[i] = v
	}
	return out, nil
}
