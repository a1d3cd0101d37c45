package conversation

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vanotis720/vochat/internal/bus"
	"github.com/vanotis720/vochat/internal/docstore"
	"github.com/vanotis720/vochat/internal/store"
	"go.uber.org/zap"
)

// Snapshot is the payload of conversation.snapshot events: the full view
// after a remote update was applied.
type Snapshot struct {
	ConversationID string
	Messages       []docstore.Message
}

// Synchronizer maintains the locally observable view of one conversation.
// The view is replaced wholesale by each remote snapshot, in delivery order.
// Sends go through the document store's union-append; the view catches up on
// the next snapshot rather than being spliced optimistically.
type Synchronizer struct {
	docs   docstore.Store
	cache  *store.DB // optional; nil disables the local snapshot cache
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	inflight atomic.Int32 // sends awaiting acknowledgement

	mu       sync.Mutex
	activeID string
	userID   string
	epoch    uint64 // bumped on every (de)activation; stale callbacks check it
	unsub    func()
	view     []docstore.Message
	lastID   int64
}

// NewSynchronizer creates an inactive synchronizer.
func NewSynchronizer(docs docstore.Store, cache *store.DB, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		docs:   docs,
		cache:  cache,
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

// Activate opens the live subscription for conversationID on behalf of
// userID. Idempotent while already active for the same conversation and
// user; otherwise the previous subscription is torn down first.
func (s *Synchronizer) Activate(conversationID, userID string) error {
	s.mu.Lock()

	if s.unsub != nil && s.activeID == conversationID && s.userID == userID {
		s.mu.Unlock()
		return nil
	}

	s.teardownLocked()
	s.activeID = conversationID
	s.userID = userID
	s.epoch++
	epoch := s.epoch

	// Seed the view from the cache so the UI has something to render until
	// the first live snapshot replaces it.
	if s.cache != nil {
		if cached, err := s.cache.ListMessages(conversationID); err == nil && len(cached) > 0 {
			s.view = cached
		}
	}
	s.mu.Unlock()

	unsub, err := s.docs.Subscribe(conversationID,
		func(conv *docstore.Conversation) { s.applySnapshot(epoch, conversationID, conv) },
		func(err error) { s.feedFailed(epoch, conversationID, err) },
	)
	if err != nil {
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
		return &SyncError{ConversationID: conversationID, Err: err}
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// Deactivated while we were subscribing.
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()

	s.logger.Info("conversation activated",
		zap.String("conversation_id", conversationID), zap.String("user_id", userID))
	return nil
}

// Deactivate cancels the subscription and clears the local view and cache.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	id := s.activeID
	s.teardownLocked()
	s.clearLocked()
	s.mu.Unlock()

	if id != "" {
		if s.cache != nil {
			if err := s.cache.ClearConversation(id); err != nil {
				s.logger.Warn("failed to clear cache", zap.Error(err))
			}
		}
		s.logger.Info("conversation deactivated", zap.String("conversation_id", id))
	}
}

// Active reports the currently subscribed conversation id, if any.
func (s *Synchronizer) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID, s.activeID != ""
}

// View returns a copy of the current message view.
func (s *Synchronizer) View() []docstore.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]docstore.Message, len(s.view))
	copy(out, s.view)
	return out
}

// Sending reports whether any Send is awaiting acknowledgement. Exposed as
// a busy flag in the daemon status.
func (s *Synchronizer) Sending() bool {
	return s.inflight.Load() > 0
}

// Send appends a message with the given content and kind. Whitespace-only
// text is suppressed. The call returns once the append is acknowledged; the
// message becomes visible through the next snapshot. Failures return a
// *SendError and leave the caller's compose state untouched.
func (s *Synchronizer) Send(ctx context.Context, content, kind string) error {
	if kind == docstore.KindText && strings.TrimSpace(content) == "" {
		return nil
	}

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	s.mu.Lock()
	if s.activeID == "" {
		s.mu.Unlock()
		return &SendError{Err: errNoConversation}
	}
	conversationID := s.activeID
	userID := s.userID
	epoch := s.epoch
	msg := docstore.Message{
		ID:        s.nextMessageIDLocked(),
		UserID:    userID,
		CreatedAt: s.now().UnixMilli(),
		Kind:      kind,
		Content:   content,
		Status:    docstore.StatusSent,
	}
	s.mu.Unlock()

	if err := s.docs.AppendMessage(ctx, conversationID, msg); err != nil {
		s.logger.Error("append failed",
			zap.String("conversation_id", conversationID), zap.String("msg_id", msg.ID), zap.Error(err))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindSendFailed,
			Timestamp: time.Now(),
			Payload:   map[string]string{"msg_id": msg.ID, "error": err.Error()},
		})
		return &SendError{Err: err}
	}

	// The append is durable either way; only our local reconciliation is
	// skipped when the session or conversation changed underneath us.
	s.mu.Lock()
	stale := s.epoch != epoch || s.userID != userID
	s.mu.Unlock()
	if stale {
		s.logger.Warn("send acknowledged for stale context",
			zap.String("conversation_id", conversationID), zap.String("msg_id", msg.ID))
		return nil
	}

	s.logger.Info("message sent",
		zap.String("conversation_id", conversationID),
		zap.String("msg_id", msg.ID), zap.String("kind", kind))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageSent,
		Timestamp: time.Now(),
		Payload:   msg,
	})
	return nil
}

func (s *Synchronizer) applySnapshot(epoch uint64, conversationID string, conv *docstore.Conversation) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.view = conv.Messages

	// Write-through while holding the lock so cache state tracks snapshot
	// delivery order exactly.
	if s.cache != nil {
		if err := s.cache.ReplaceConversation(conversationID, conv.Messages); err != nil {
			s.logger.Warn("failed to cache snapshot", zap.Error(err))
		}
	}
	count := len(conv.Messages)
	s.mu.Unlock()

	s.logger.Debug("snapshot applied",
		zap.String("conversation_id", conversationID), zap.Int("messages", count))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindSnapshotApplied,
		Timestamp: time.Now(),
		Payload:   Snapshot{ConversationID: conversationID, Messages: conv.Messages},
	})
}

func (s *Synchronizer) feedFailed(epoch uint64, conversationID string, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.unsub = nil
	s.mu.Unlock()

	syncErr := &SyncError{ConversationID: conversationID, Err: err}
	s.logger.Error("subscription failed", zap.Error(syncErr))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindSyncError,
		Timestamp: time.Now(),
		Payload:   syncErr.Error(),
	})
}

// nextMessageIDLocked derives a time-based unique identifier, bumping by one
// when two sends land on the same millisecond.
func (s *Synchronizer) nextMessageIDLocked() string {
	ms := s.now().UnixMilli()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	return strconv.FormatInt(ms, 10)
}

func (s *Synchronizer) teardownLocked() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.epoch++
}

func (s *Synchronizer) clearLocked() {
	s.activeID = ""
	s.userID = ""
	s.view = nil
}
