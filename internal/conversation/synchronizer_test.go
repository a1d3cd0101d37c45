package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vanotis720/vochat/internal/bus"
	"github.com/vanotis720/vochat/internal/docstore"
	"github.com/vanotis720/vochat/internal/store"
	"go.uber.org/zap"
)

// fakeDocs is an in-memory document store with union-append semantics and a
// manually driven snapshot feed.
type fakeDocs struct {
	mu           sync.Mutex
	messages     map[string][]docstore.Message
	onSnapshot   func(*docstore.Conversation)
	onError      func(error)
	subscribes   int
	unsubs       int
	appendErr    error
	beforeAck    func() // runs after the append lands, before returning
	subscribeErr error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{messages: make(map[string][]docstore.Message)}
}

func (f *fakeDocs) Subscribe(_ string, onSnapshot func(*docstore.Conversation), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.subscribes++
	f.onSnapshot = onSnapshot
	f.onError = onError
	return func() {
		f.mu.Lock()
		f.unsubs++
		f.mu.Unlock()
	}, nil
}

func (f *fakeDocs) AppendMessage(_ context.Context, conversationID string, msg docstore.Message) error {
	f.mu.Lock()
	if f.appendErr != nil {
		f.mu.Unlock()
		return f.appendErr
	}
	exists := false
	for _, m := range f.messages[conversationID] {
		if m == msg {
			exists = true
			break
		}
	}
	if !exists {
		f.messages[conversationID] = append(f.messages[conversationID], msg)
	}
	hook := f.beforeAck
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeDocs) push(id string) {
	f.mu.Lock()
	conv := &docstore.Conversation{ID: id, Messages: append([]docstore.Message(nil), f.messages[id]...)}
	fn := f.onSnapshot
	f.mu.Unlock()
	if fn != nil {
		fn(conv)
	}
}

func (f *fakeDocs) pushSnapshot(conv *docstore.Conversation) {
	f.mu.Lock()
	fn := f.onSnapshot
	f.mu.Unlock()
	if fn != nil {
		fn(conv)
	}
}

func newTestSync(t *testing.T) (*Synchronizer, *fakeDocs, *bus.Bus) {
	t.Helper()
	f := newFakeDocs()
	b := bus.New()
	s := NewSynchronizer(f, nil, b, zap.NewNop())
	return s, f, b
}

func TestSnapshotReplacesView(t *testing.T) {
	s, f, _ := newTestSync(t)

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	f.pushSnapshot(&docstore.Conversation{ID: "c1", Messages: []docstore.Message{
		{ID: "m1", Content: "one"}, {ID: "m2", Content: "two"},
	}})
	f.pushSnapshot(&docstore.Conversation{ID: "c1", Messages: []docstore.Message{
		{ID: "m1", Content: "one"},
	}})

	view := s.View()
	if len(view) != 1 || view[0].ID != "m1" {
		t.Errorf("view = %+v, want exactly the last snapshot", view)
	}
}

func TestActivateIdempotentForSameConversation(t *testing.T) {
	s, f, _ := newTestSync(t)

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}

	if f.subscribes != 1 {
		t.Errorf("subscribes = %d, want 1 (idempotent)", f.subscribes)
	}
	if f.unsubs != 0 {
		t.Errorf("unsubs = %d, want 0", f.unsubs)
	}
}

func TestActivateDifferentConversationTearsDownPrevious(t *testing.T) {
	s, f, _ := newTestSync(t)

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Activate("c2", "U1"); err != nil {
		t.Fatal(err)
	}

	if f.subscribes != 2 {
		t.Errorf("subscribes = %d, want 2", f.subscribes)
	}
	if f.unsubs != 1 {
		t.Errorf("unsubs = %d, want 1 (previous torn down)", f.unsubs)
	}
}

func TestDeactivateCancelsAndClears(t *testing.T) {
	s, f, _ := newTestSync(t)

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}
	f.pushSnapshot(&docstore.Conversation{ID: "c1", Messages: []docstore.Message{{ID: "m1"}}})

	s.Deactivate()

	if f.unsubs != 1 {
		t.Errorf("unsubs = %d, want 1", f.unsubs)
	}
	if len(s.View()) != 0 {
		t.Error("view not cleared after deactivate")
	}
	if _, active := s.Active(); active {
		t.Error("still active after deactivate")
	}

	// A snapshot delivered by the dead subscription must be ignored.
	f.pushSnapshot(&docstore.Conversation{ID: "c1", Messages: []docstore.Message{{ID: "m2"}}})
	if len(s.View()) != 0 {
		t.Error("stale snapshot applied after deactivate")
	}
}

func TestSendAppendsWithoutLocalSplice(t *testing.T) {
	s, f, b := newTestSync(t)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ch, unsub := b.Subscribe(bus.KindMessageSent, 4)
	defer unsub()

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}

	if err := s.Send(context.Background(), "hello", docstore.KindText); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	f.mu.Lock()
	stored := f.messages["c1"]
	f.mu.Unlock()
	if len(stored) != 1 {
		t.Fatalf("store has %d messages, want 1", len(stored))
	}
	got := stored[0]
	if got.UserID != "U1" || got.Kind != docstore.KindText || got.Content != "hello" || got.Status != docstore.StatusSent {
		t.Errorf("appended message = %+v", got)
	}
	if got.ID != "1700000000000" {
		t.Errorf("msg id = %q, want time-derived 1700000000000", got.ID)
	}

	// No optimistic insert: the view stays empty until a snapshot arrives.
	if len(s.View()) != 0 {
		t.Error("view spliced locally before snapshot")
	}

	f.push("c1")
	view := s.View()
	if len(view) != 1 || view[0].Content != "hello" {
		t.Errorf("view after snapshot = %+v", view)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sent event")
	}
}

func TestSendIDsAreUniquePerMillisecond(t *testing.T) {
	s, f, _ := newTestSync(t)
	s.now = func() time.Time { return time.UnixMilli(1000) }

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), "a", docstore.KindText); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), "b", docstore.KindText); err != nil {
		t.Fatal(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages["c1"]) != 2 {
		t.Fatalf("got %d messages, want 2", len(f.messages["c1"]))
	}
	if f.messages["c1"][0].ID == f.messages["c1"][1].ID {
		t.Errorf("ids collide: %q", f.messages["c1"][0].ID)
	}
}

func TestSendFailure(t *testing.T) {
	s, f, b := newTestSync(t)
	f.appendErr = errors.New("network down")

	ch, unsub := b.Subscribe(bus.KindSendFailed, 4)
	defer unsub()

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}

	err := s.Send(context.Background(), "hello", docstore.KindText)
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error type = %T, want *SendError", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}
}

func TestSendWithoutActiveConversation(t *testing.T) {
	s, _, _ := newTestSync(t)

	err := s.Send(context.Background(), "hello", docstore.KindText)
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error type = %T, want *SendError", err)
	}
}

func TestEmptyTextSuppressed(t *testing.T) {
	s, f, _ := newTestSync(t)

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), "   \n", docstore.KindText); err != nil {
		t.Errorf("Send(whitespace) error = %v, want nil no-op", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages["c1"]) != 0 {
		t.Error("whitespace-only text was appended")
	}
}

func TestStaleSendSkipsReconciliation(t *testing.T) {
	s, f, b := newTestSync(t)

	ch, unsub := b.Subscribe(bus.KindMessageSent, 4)
	defer unsub()

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}

	// Sign-out lands while the append is in flight: the write completes,
	// but the sent event must not be published against the dead view.
	f.beforeAck = func() { s.Deactivate() }

	if err := s.Send(context.Background(), "hello", docstore.KindText); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	f.mu.Lock()
	stored := len(f.messages["c1"])
	f.mu.Unlock()
	if stored != 1 {
		t.Errorf("append did not complete: %d messages", stored)
	}

	select {
	case <-ch:
		t.Error("sent event published for stale context")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeFailureReturnsSyncError(t *testing.T) {
	s, f, _ := newTestSync(t)
	f.subscribeErr = errors.New("permission denied")

	err := s.Activate("c1", "U1")
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("error type = %T, want *SyncError", err)
	}
	if _, active := s.Active(); active {
		t.Error("synchronizer active after failed subscribe")
	}
}

func TestFeedFailurePublishesSyncError(t *testing.T) {
	s, f, b := newTestSync(t)

	ch, unsub := b.Subscribe(bus.KindSyncError, 4)
	defer unsub()

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}

	f.onError(errors.New("feed closed"))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sync_error event")
	}
}

func TestCacheWriteThroughAndSeed(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	f := newFakeDocs()
	b := bus.New()
	s := NewSynchronizer(f, db, b, zap.NewNop())

	if err := s.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}
	f.pushSnapshot(&docstore.Conversation{ID: "c1", Messages: []docstore.Message{
		{ID: "m1", UserID: "U1", Kind: docstore.KindText, Content: "hi", Status: docstore.StatusSent, CreatedAt: 1000},
	}})

	cached, err := db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 1 {
		t.Fatalf("cache has %d messages, want 1", len(cached))
	}

	// A fresh synchronizer over the same cache seeds its view before any
	// live snapshot.
	s2 := NewSynchronizer(newFakeDocs(), db, b, zap.NewNop())
	if err := s2.Activate("c1", "U1"); err != nil {
		t.Fatal(err)
	}
	if view := s2.View(); len(view) != 1 || view[0].ID != "m1" {
		t.Errorf("seeded view = %+v, want cached m1", view)
	}

	// Deactivate drops the cached view.
	s.Deactivate()
	cached, err = db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 0 {
		t.Errorf("cache has %d messages after deactivate, want 0", len(cached))
	}
}
