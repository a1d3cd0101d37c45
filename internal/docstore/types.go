package docstore

// Message kinds and delivery statuses as stored in conversation documents.
const (
	KindText  = "text"
	KindAudio = "audio"

	StatusSent = "sent"
	StatusRead = "read"
)

// Message is one entry of a conversation document. IDs are time-derived and
// unique within the conversation; CreatedAt is server-authoritative once the
// append is confirmed. Content holds the text body for text messages and a
// resolved playable URL for audio messages.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	CreatedAt int64  `json:"createdAt"`
	Kind      string `json:"type"`
	Content   string `json:"content"`
	Status    string `json:"status"`
}

// Conversation is a full document snapshot: the ordered message sequence as
// the store currently holds it. Snapshots are authoritative and replace any
// previously delivered state.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}
