package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vanotis720/vochat/internal/api"
	"github.com/vanotis720/vochat/internal/audio"
	"github.com/vanotis720/vochat/internal/auth"
	"github.com/vanotis720/vochat/internal/bus"
	"github.com/vanotis720/vochat/internal/conversation"
	"github.com/vanotis720/vochat/internal/docstore"
	"github.com/vanotis720/vochat/internal/lock"
	"github.com/vanotis720/vochat/internal/session"
	"github.com/vanotis720/vochat/internal/status"
	"github.com/vanotis720/vochat/internal/store"
	"go.uber.org/zap"
)

type stubAuth struct{ user *auth.User }

func (s *stubAuth) SignIn(_ context.Context, email, _ string) (*auth.User, error) {
	s.user = &auth.User{ID: "U1", Email: email}
	return s.user, nil
}
func (s *stubAuth) SignOut(context.Context) error          { s.user = nil; return nil }
func (s *stubAuth) OnSessionChange(fn func(*auth.User)) func() {
	fn(s.user)
	return func() {}
}
func (s *stubAuth) CurrentUser() *auth.User { return s.user }

type stubDocs struct{}

func (stubDocs) Subscribe(string, func(*docstore.Conversation), func(error)) (func(), error) {
	return func() {}, nil
}
func (stubDocs) AppendMessage(context.Context, string, docstore.Message) error { return nil }

type stubDevice struct{}

func (stubDevice) RequestPermission(context.Context) (bool, error) { return false, nil }
func (stubDevice) StartRecording(context.Context, audio.RecordingPreset) (audio.Capture, error) {
	return nil, context.Canceled
}
func (stubDevice) LoadAndPlay(context.Context, string, func(audio.PlaybackStatus)) (audio.Player, error) {
	return nil, context.Canceled
}

type stubBlob struct{}

func (stubBlob) Put(context.Context, string, []byte, string) error { return nil }
func (stubBlob) DownloadURL(context.Context, string) (string, error) {
	return "https://blobs/none", nil
}

func newTestHandler(t *testing.T, profileName string) *api.Handler {
	t.Helper()
	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	sessions := session.NewManager(&stubAuth{}, b, logger)
	sync := conversation.NewSynchronizer(stubDocs{}, nil, b, logger)
	recorder := audio.NewRecorder(stubDevice{}, stubBlob{}, sync,
		audio.RecordingPreset{Format: "m4a", Dir: t.TempDir()}, b, logger)
	playback := audio.NewPlayback(stubDevice{}, b, logger)
	return api.New(profileName, machine, sessions, sync, recorder, playback, b, logger)
}

func socketClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}
}

func TestDaemonLifecycle(t *testing.T) {
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "vochat-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	profileDir := filepath.Join(tmpDir, "p")
	socketPath := filepath.Join(profileDir, "d.sock")
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		t.Fatal(err)
	}

	lk, err := lock.Acquire(profileDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(profileDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	handler := newTestHandler(t, "test")
	srv, err := NewServer(Params{ProfileName: "test", SocketPath: socketPath}, zap.NewNop(), handler)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)

	client := socketClient(socketPath)

	resp, err := client.Get("http://vochat/v1/status")
	if err != nil {
		t.Fatalf("status request error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want 200", resp.StatusCode)
	}

	var st api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Profile != "test" {
		t.Errorf("profile = %q, want %q", st.Profile, "test")
	}
	if st.Status != string(status.Booting) {
		t.Errorf("status = %q, want BOOTING", st.Status)
	}
	if st.UserID != "" {
		t.Errorf("user = %q, want unauthenticated", st.UserID)
	}
}

func TestServerCleansStaleSocket(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "vochat-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")

	// Leave a stale socket file behind, as a crashed daemon would.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	handler := newTestHandler(t, "test")
	srv, err := NewServer(Params{ProfileName: "test", SocketPath: socketPath}, zap.NewNop(), handler)
	if err != nil {
		t.Fatalf("NewServer over stale socket failed: %v", err)
	}

	if _, err := os.Stat(socketPath); err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after Stop")
	}
}

func TestServerStopIsIdempotentWithSlowClients(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "vochat-stop-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")
	handler := newTestHandler(t, "test")
	srv, err := NewServer(Params{ProfileName: "test", SocketPath: socketPath}, zap.NewNop(), handler)
	if err != nil {
		t.Fatal(err)
	}

	started := make(chan error, 1)
	go func() { started <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	srv.Stop(context.Background())

	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("Start returned error after graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
