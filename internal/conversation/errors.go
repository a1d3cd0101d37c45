package conversation

import "fmt"

// SyncError reports a subscription failure. The subscription is dead; it may
// be retried by re-activation.
type SyncError struct {
	ConversationID string
	Err            error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("conversation %s sync failed: %v", e.ConversationID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// SendError reports a failed append. Recoverable: the caller keeps its
// compose state and may retry manually.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
