package emberd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client connects to a running Server over its Unix socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient builds a Client for the socket at socketPath.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("emberd: connecting to %s: %w", c.socketPath, err)
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// IsRunning reports whether the socket currently accepts connections.
func (c *Client) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := c.connect(ctx)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("emberd: sending request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("emberd: reading response: %w", err)
	}
	return resp, nil
}

// Health requests the server's status.
func (c *Client) Health(ctx context.Context) (HealthResult, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpHealth})
	if err != nil {
		return HealthResult{}, err
	}
	if resp.Status != StatusOK {
		return HealthResult{}, fmt.Errorf("emberd: health failed: %s", resp.Error.String())
	}
	var result HealthResult
	if err := remarshal(resp.Payload, &result); err != nil {
		return HealthResult{}, err
	}
	return result, nil
}

// Embed sends texts to the server and returns one vector per text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpEmbed, Payload: EmbedRequest{Texts: texts}})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, fmt.Errorf("emberd: embed failed: %s", resp.Error.String())
	}
	var result EmbedResult
	if err := remarshal(resp.Payload, &result); err != nil {
		return nil, err
	}
	return result.Vectors, nil
}

// Shutdown asks the server to exit gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, Request{Op: OpShutdown})
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return fmt.Errorf("emberd: shutdown failed: %s", resp.Error.String())
	}
	return nil
}

func remarshal(src any, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
