package audio

import (
	"context"
	"time"
)

// RecordingPreset configures a capture.
type RecordingPreset struct {
	// Format is the container extension the device writes (e.g. "m4a").
	Format string
	// Dir is where local captures land before upload.
	Dir string
}

// Capture is an in-progress device recording. Stop ends the capture and
// returns the URI of the local audio file.
type Capture interface {
	Stop(ctx context.Context) (localURI string, err error)
}

// PlaybackStatus is delivered by the device while a sound is loaded.
type PlaybackStatus struct {
	Position time.Duration
	Finished bool
	Err      error
}

// Player is a loaded playback resource. Unload releases the underlying
// decoder/device resource and must be called on every exit path.
type Player interface {
	Pause() error
	Resume() error
	Unload() error
}

// Device is the platform audio contract: microphone capture and decode/
// playback. Implementations own the device handles exclusively.
type Device interface {
	RequestPermission(ctx context.Context) (bool, error)
	StartRecording(ctx context.Context, preset RecordingPreset) (Capture, error)
	LoadAndPlay(ctx context.Context, url string, onStatus func(PlaybackStatus)) (Player, error)
}
