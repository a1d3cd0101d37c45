package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vanotis720/vochat/internal/bus"
	"go.uber.org/zap"
)

type fakePlayer struct {
	mu       sync.Mutex
	paused   int
	resumed  int
	unloaded int
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused++
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumed++
	return nil
}

func (p *fakePlayer) Unload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloaded++
	return nil
}

func (p *fakePlayer) unloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unloaded
}

// playbackDevice tracks one fake player per URL and exposes the status
// callbacks handed to LoadAndPlay.
type playbackDevice struct {
	mu       sync.Mutex
	players  map[string]*fakePlayer
	statusFn map[string]func(PlaybackStatus)
	loadErr  error
}

func newPlaybackDevice() *playbackDevice {
	return &playbackDevice{
		players:  make(map[string]*fakePlayer),
		statusFn: make(map[string]func(PlaybackStatus)),
	}
}

func (d *playbackDevice) RequestPermission(context.Context) (bool, error) { return true, nil }

func (d *playbackDevice) StartRecording(context.Context, RecordingPreset) (Capture, error) {
	return nil, errors.New("not a capture device")
}

func (d *playbackDevice) LoadAndPlay(_ context.Context, url string, onStatus func(PlaybackStatus)) (Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return nil, d.loadErr
	}
	p := &fakePlayer{}
	d.players[url] = p
	d.statusFn[url] = onStatus
	return p, nil
}

func (d *playbackDevice) finish(url string) {
	d.mu.Lock()
	fn := d.statusFn[url]
	d.mu.Unlock()
	fn(PlaybackStatus{Finished: true})
}

func newTestPlayback(t *testing.T) (*Playback, *playbackDevice, *bus.Bus) {
	t.Helper()
	d := newPlaybackDevice()
	b := bus.New()
	return NewPlayback(d, b, zap.NewNop()), d, b
}

func TestPlayPauseResume(t *testing.T) {
	p, d, _ := newTestPlayback(t)
	ctx := context.Background()

	if err := p.Play(ctx, "m1", "https://blobs/audio/1.m4a"); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if p.State("m1") != Playing {
		t.Errorf("state = %s, want playing", p.State("m1"))
	}

	if err := p.Pause("m1"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if p.State("m1") != Paused {
		t.Errorf("state = %s, want paused", p.State("m1"))
	}

	if err := p.Play(ctx, "m1", "https://blobs/audio/1.m4a"); err != nil {
		t.Fatalf("resume Play() error = %v", err)
	}
	if p.State("m1") != Playing {
		t.Errorf("state = %s, want playing after resume", p.State("m1"))
	}

	player := d.players["https://blobs/audio/1.m4a"]
	if player.paused != 1 || player.resumed != 1 {
		t.Errorf("paused=%d resumed=%d, want 1/1", player.paused, player.resumed)
	}
	if player.unloads() != 0 {
		t.Error("player unloaded during pause/resume")
	}
}

func TestSupersessionReleasesOtherHandle(t *testing.T) {
	p, d, _ := newTestPlayback(t)
	ctx := context.Background()

	if err := p.Play(ctx, "m1", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx, "m2", "u2"); err != nil {
		t.Fatal(err)
	}

	if p.State("m1") != Unloaded {
		t.Errorf("m1 state = %s, want unloaded (superseded)", p.State("m1"))
	}
	if p.State("m2") != Playing {
		t.Errorf("m2 state = %s, want playing", p.State("m2"))
	}
	if d.players["u1"].unloads() != 1 {
		t.Error("superseded player not unloaded")
	}
}

func TestPauseIsPerMessage(t *testing.T) {
	p, d, _ := newTestPlayback(t)
	ctx := context.Background()

	if err := p.Play(ctx, "m1", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx, "m2", "u2"); err != nil {
		t.Fatal(err)
	}
	if err := p.Pause("m2"); err != nil {
		t.Fatal(err)
	}

	// m1 was already released by supersession; pausing m2 must not have
	// touched it again.
	if d.players["u1"].paused != 0 {
		t.Error("pausing m2 paused m1's player")
	}
	if p.State("m2") != Paused {
		t.Errorf("m2 state = %s, want paused", p.State("m2"))
	}
}

func TestStreamEndReleasesResource(t *testing.T) {
	p, d, _ := newTestPlayback(t)

	if err := p.Play(context.Background(), "m1", "u1"); err != nil {
		t.Fatal(err)
	}
	d.finish("u1")

	if p.State("m1") != Unloaded {
		t.Errorf("state = %s, want unloaded after stream end", p.State("m1"))
	}
	if d.players["u1"].unloads() != 1 {
		t.Error("player not unloaded on stream end")
	}
}

func TestLoadErrorIsolated(t *testing.T) {
	p, d, b := newTestPlayback(t)
	ctx := context.Background()

	if err := p.Play(ctx, "m1", "u1"); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe(bus.KindPlaybackFailed, 4)
	defer unsub()

	d.mu.Lock()
	d.loadErr = errors.New("decode failed")
	d.mu.Unlock()

	err := p.Play(ctx, "m2", "u2")
	var perr *PlaybackError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *PlaybackError", err)
	}
	if perr.MessageID != "m2" {
		t.Errorf("failed message = %q, want m2", perr.MessageID)
	}
	if p.State("m2") != Unloaded {
		t.Errorf("m2 state = %s, want unloaded", p.State("m2"))
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for playback failure event")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	p, d, _ := newTestPlayback(t)
	ctx := context.Background()

	if err := p.Play(ctx, "m1", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Pause("m1"); err != nil {
		t.Fatal(err)
	}

	p.Close()

	if p.State("m1") != Unloaded {
		t.Errorf("state = %s, want unloaded after Close", p.State("m1"))
	}
	if d.players["u1"].unloads() != 1 {
		t.Error("player not unloaded by Close")
	}
}

func TestPlayWhilePlayingIsNoOp(t *testing.T) {
	p, d, _ := newTestPlayback(t)
	ctx := context.Background()

	if err := p.Play(ctx, "m1", "u1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(ctx, "m1", "u1"); err != nil {
		t.Fatal(err)
	}
	if d.players["u1"].unloads() != 0 {
		t.Error("replay of playing message disturbed its handle")
	}
}
