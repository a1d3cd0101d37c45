package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxSnapshotMiB = 8
)

// Client talks to the document service: appends go over HTTP, change feeds
// arrive as full-document snapshots over a WebSocket per conversation.
type Client struct {
	endpoint string
	token    func() string
	http     *http.Client
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

// NewClient creates a document store client. token supplies the current
// identity token for each request; it may return empty when signed out.
func NewClient(endpoint string, token func() string, logger *zap.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: 15 * time.Second},
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
}

// Subscribe opens the conversation's snapshot feed. Snapshots are decoded and
// delivered to onSnapshot from a single goroutine, preserving feed order.
func (c *Client) Subscribe(conversationID string, onSnapshot func(*Conversation), onError func(error)) (func(), error) {
	wsURL := toWebSocketURL(c.endpoint) + "/v1/conversations/" + conversationID + "/watch"

	header := http.Header{}
	if tok := c.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := c.dialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot feed: %w", err)
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	unsubscribe := func() {
		closeOnce.Do(func() {
			close(done)
			_ = conn.Close()
		})
	}

	conn.SetReadLimit(maxSnapshotMiB << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-done:
					// Cancelled locally; not an error.
				default:
					c.logger.Warn("snapshot feed closed",
						zap.String("conversation_id", conversationID), zap.Error(err))
					onError(fmt.Errorf("snapshot feed: %w", err))
				}
				unsubscribe()
				return
			}

			var conv Conversation
			if err := json.Unmarshal(data, &conv); err != nil {
				c.logger.Warn("malformed snapshot", zap.Error(err))
				onError(fmt.Errorf("decode snapshot: %w", err))
				unsubscribe()
				return
			}
			onSnapshot(&conv)
		}
	}()

	return unsubscribe, nil
}

// AppendMessage issues a union-append of msg to the conversation document.
func (c *Client) AppendMessage(ctx context.Context, conversationID string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	url := c.endpoint + "/v1/conversations/" + conversationID + "/messages:append"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("append message: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}

func toWebSocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}
