package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vanotis720/vochat/internal/api"
	"github.com/vanotis720/vochat/internal/docstore"
)

// Client talks to the daemon's control API over its Unix domain socket.
type Client struct {
	http       *http.Client
	socketPath string
}

// New creates a client for the daemon's Unix domain socket. The daemon is
// not contacted until the first call.
func New(socketPath string) (*Client, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("empty socket path")
	}
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon error (%s): %s", e.Type, e.Message)
}

// Status fetches the daemon status summary.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.get(ctx, "/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.post(ctx, "/v1/login", body, nil)
}

// Logout terminates the daemon's session.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/v1/logout", nil, nil)
}

// Messages returns the daemon's current conversation view.
func (c *Client) Messages(ctx context.Context) ([]docstore.Message, error) {
	var msgs []docstore.Message
	if err := c.get(ctx, "/v1/messages", &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Send appends a text message to the active conversation.
func (c *Client) Send(ctx context.Context, content string) error {
	return c.post(ctx, "/v1/messages", map[string]string{"content": content}, nil)
}

// RecordStart begins a voice recording.
func (c *Client) RecordStart(ctx context.Context) (string, error) {
	return c.postState(ctx, "/v1/recording/start")
}

// RecordStop ends the recording and triggers upload and send.
func (c *Client) RecordStop(ctx context.Context) (string, error) {
	return c.postState(ctx, "/v1/recording/stop")
}

// RecordAck clears a failed recording back to idle.
func (c *Client) RecordAck(ctx context.Context) (string, error) {
	return c.postState(ctx, "/v1/recording/ack")
}

// Play starts or resumes playback of an audio message.
func (c *Client) Play(ctx context.Context, messageID string) (string, error) {
	return c.postState(ctx, "/v1/playback/"+messageID+"/play")
}

// Pause pauses playback of an audio message.
func (c *Client) Pause(ctx context.Context, messageID string) (string, error) {
	return c.postState(ctx, "/v1/playback/"+messageID+"/pause")
}

// ReleasePlayback unloads an audio message's playback resources.
func (c *Client) ReleasePlayback(ctx context.Context, messageID string) (string, error) {
	return c.postState(ctx, "/v1/playback/"+messageID+"/release")
}

// Events opens the daemon's event stream. An empty prefix subscribes to
// everything. The returned channel closes when the stream ends; call cancel
// to end it early.
func (c *Client) Events(ctx context.Context, prefix string) (<-chan api.EventEnvelope, func(), error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	url := "ws://vochat/v1/events"
	if prefix != "" {
		url += "?prefix=" + prefix
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial event stream: %w", err)
	}

	out := make(chan api.EventEnvelope, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var env api.EventEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	return out, cancel, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://vochat"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://vochat"+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) postState(ctx context.Context, path string) (string, error) {
	var resp map[string]string
	if err := c.post(ctx, path, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp["state"], nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
			Type  string `json:"type"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = string(data)
		}
		return &APIError{StatusCode: resp.StatusCode, Type: apiErr.Type, Message: apiErr.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
