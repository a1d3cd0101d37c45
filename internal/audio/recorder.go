package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vanotis720/vochat/internal/blob"
	"github.com/vanotis720/vochat/internal/bus"
	"github.com/vanotis720/vochat/internal/docstore"
	"go.uber.org/zap"
)

// RecordingState is the recorder's lifecycle state.
type RecordingState string

const (
	Idle      RecordingState = "idle"
	Recording RecordingState = "recording"
	Stopping  RecordingState = "stopping"
	Uploading RecordingState = "uploading"
	Failed    RecordingState = "failed"
)

// ErrBusy is returned by Start while a recording session is active.
var ErrBusy = errors.New("a recording is already in progress")

var recorderTransitions = map[RecordingState][]RecordingState{
	Idle:      {Recording},
	Recording: {Stopping, Idle},
	Stopping:  {Uploading, Failed, Idle},
	Uploading: {Idle, Failed},
	Failed:    {Idle},
}

// Sender routes a finished upload into the conversation.
type Sender interface {
	Send(ctx context.Context, content, kind string) error
}

// Recorder drives the capture → upload → append pipeline for voice
// messages. Exactly one session may be active; Start is rejected until a
// prior Stop has fully resolved (including its upload).
type Recorder struct {
	device Device
	blobs  blob.Store
	sender Sender
	preset RecordingPreset
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     RecordingState
	capture   Capture
	startedAt time.Time
	failure   error
}

// NewRecorder creates an idle recorder.
func NewRecorder(device Device, blobs blob.Store, sender Sender, preset RecordingPreset, b *bus.Bus, logger *zap.Logger) *Recorder {
	return &Recorder{
		device: device,
		blobs:  blobs,
		sender: sender,
		preset: preset,
		bus:    b,
		logger: logger,
		now:    time.Now,
		state:  Idle,
	}
}

// State returns the current recorder state.
func (r *Recorder) State() RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Failure returns the error that put the recorder into failed, or nil.
func (r *Recorder) Failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// Start requests microphone permission and begins a capture. Rejected with
// ErrBusy, without side effects, while a session is active.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return ErrBusy
	}
	// Reserve the session before the awaited device calls so a second
	// Start cannot slip in.
	r.toLocked(Recording)
	r.startedAt = r.now()
	r.mu.Unlock()

	granted, err := r.device.RequestPermission(ctx)
	if err == nil && !granted {
		err = errors.New("microphone permission denied")
	}
	if err != nil {
		r.abortStart(&RecordingError{Stage: "permission", Err: err})
		return &RecordingError{Stage: "permission", Err: err}
	}

	capture, err := r.device.StartRecording(ctx, r.preset)
	if err != nil {
		r.abortStart(&RecordingError{Stage: "capture", Err: err})
		return &RecordingError{Stage: "capture", Err: err}
	}

	r.mu.Lock()
	r.capture = capture
	r.mu.Unlock()

	r.logger.Info("recording started")
	return nil
}

// Stop ends the capture, uploads the audio and appends the message. The
// recorder does not accept a new Start until this resolves. On upload
// failure the local audio is discarded, no message is sent, and the
// recorder stays failed until Acknowledge.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Recording || r.capture == nil {
		r.mu.Unlock()
		return fmt.Errorf("no recording in progress (state %s)", r.state)
	}
	capture := r.capture
	r.capture = nil
	duration := r.now().Sub(r.startedAt)
	r.toLocked(Stopping)
	r.mu.Unlock()

	localURI, err := capture.Stop(ctx)
	if err != nil {
		recErr := &RecordingError{Stage: "stop", Err: err}
		r.fail(recErr)
		// Device-level stop failures leave nothing to upload; the
		// session is recoverable straight back to idle.
		r.Acknowledge()
		return recErr
	}

	r.mu.Lock()
	r.toLocked(Uploading)
	r.mu.Unlock()

	url, err := r.upload(ctx, localURI)
	discardLocal(localURI)
	if err != nil {
		upErr := &UploadError{Err: err}
		r.fail(upErr)
		return upErr
	}

	if err := r.sender.Send(ctx, url, docstore.KindAudio); err != nil {
		upErr := &UploadError{Err: err}
		r.fail(upErr)
		return upErr
	}

	r.mu.Lock()
	r.toLocked(Idle)
	r.failure = nil
	r.mu.Unlock()

	r.logger.Info("voice message delivered",
		zap.String("url", url), zap.Duration("duration", duration))
	return nil
}

// Acknowledge moves a failed recorder back to idle.
func (r *Recorder) Acknowledge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Failed {
		r.failure = nil
		r.toLocked(Idle)
	}
}

func (r *Recorder) upload(ctx context.Context, localURI string) (string, error) {
	data, err := os.ReadFile(strings.TrimPrefix(localURI, "file://"))
	if err != nil {
		return "", fmt.Errorf("read capture: %w", err)
	}

	key := blob.AudioKey(r.now(), localURI)
	if err := r.blobs.Put(ctx, key, data, contentTypeFor(key)); err != nil {
		return "", err
	}
	url, err := r.blobs.DownloadURL(ctx, key)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (r *Recorder) abortStart(cause error) {
	r.mu.Lock()
	r.toLocked(Idle)
	r.mu.Unlock()
	r.logger.Warn("recording aborted", zap.Error(cause))
	r.bus.Publish(bus.Event{
		Kind:      bus.KindRecordingFailed,
		Timestamp: time.Now(),
		Payload:   cause.Error(),
	})
}

func (r *Recorder) fail(cause error) {
	r.mu.Lock()
	r.failure = cause
	r.toLocked(Failed)
	r.mu.Unlock()
	r.logger.Error("recording failed", zap.Error(cause))
	r.bus.Publish(bus.Event{
		Kind:      bus.KindRecordingFailed,
		Timestamp: time.Now(),
		Payload:   cause.Error(),
	})
}

// toLocked transitions the state machine; must be called with mu held.
// Invalid transitions indicate a pipeline bug and are logged, not applied.
func (r *Recorder) toLocked(to RecordingState) {
	if !slices.Contains(recorderTransitions[r.state], to) {
		r.logger.Error("invalid recorder transition",
			zap.String("from", string(r.state)), zap.String("to", string(to)))
		return
	}
	from := r.state
	r.state = to
	r.bus.Publish(bus.Event{
		Kind:      bus.KindRecordingState,
		Timestamp: time.Now(),
		Payload:   RecordingChange{From: from, To: to},
	})
}

// RecordingChange is the payload of recording state events.
type RecordingChange struct {
	From RecordingState
	To   RecordingState
}

func discardLocal(localURI string) {
	_ = os.Remove(strings.TrimPrefix(localURI, "file://"))
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".caf"):
		return "audio/x-caf"
	default:
		return "audio/mp4"
	}
}
