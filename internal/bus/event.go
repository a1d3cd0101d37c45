package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the core components.
const (
	KindSessionChanged  = "session.changed"
	KindSessionError    = "session.error"
	KindStatusChanged   = "daemon.status_changed"
	KindSnapshotApplied = "conversation.snapshot"
	KindMessageSent     = "conversation.sent"
	KindSendFailed      = "conversation.send_failed"
	KindSyncError       = "conversation.sync_error"
	KindRecordingState  = "recording.state_changed"
	KindRecordingFailed = "recording.failed"
	KindPlaybackState   = "playback.state_changed"
	KindPlaybackFailed  = "playback.failed"
)
