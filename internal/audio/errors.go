package audio

import "fmt"

// RecordingError reports a permission or device capture failure. Terminal
// for the attempt; the recorder is back in idle.
type RecordingError struct {
	Stage string // "permission", "capture", "stop"
	Err   error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("recording failed (%s): %v", e.Stage, e.Err)
}

func (e *RecordingError) Unwrap() error { return e.Err }

// UploadError reports a failed upload of a finished capture. Terminal for
// that recording: the local audio is discarded and no message is sent.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("audio upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PlaybackError is isolated to one message's handle; its device resource has
// been released and other handles are unaffected.
type PlaybackError struct {
	MessageID string
	Err       error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of %s failed: %v", e.MessageID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
