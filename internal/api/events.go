package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventWriteWait   = 10 * time.Second
	eventPingPeriod  = 30 * time.Second
	eventBufferSize  = 128
	eventReadLimit   = 512
	eventPongTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The socket only accepts local connections, no origin to check.
	CheckOrigin: func(*http.Request) bool { return true },
}

// EventEnvelope is the wire form of a bus event on the /v1/events stream.
type EventEnvelope struct {
	EventID          string `json:"event_id"`
	Kind             string `json:"kind"`
	OccurredAtUnixMs int64  `json:"occurred_at_unix_ms"`
	Payload          any    `json:"payload,omitempty"`
}

// handleEvents streams bus events to the client over a WebSocket. The optional
// ?prefix= query narrows the stream to one event family ("recording.", etc).
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("event stream upgrade failed", zap.Error(err))
		return
	}

	prefix := r.URL.Query().Get("prefix")
	events, unsubscribe := h.bus.Subscribe(prefix, eventBufferSize)
	defer unsubscribe()

	// Drain reads so pongs and the client's close frame are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(eventReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(eventPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt := <-events:
			env := EventEnvelope{
				EventID:          uuid.NewString(),
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          evt.Payload,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
