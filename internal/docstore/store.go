package docstore

import "context"

// Store is the external document store contract consumed by the
// conversation synchronizer.
//
// Subscribe opens a change feed for one conversation. onSnapshot is called
// with the full current document immediately and again on every change, in
// the order the store emits them. onError reports feed failures; the feed is
// dead afterwards and may be reopened by a new Subscribe. The returned
// function cancels the feed.
//
// AppendMessage atomically appends msg to the conversation's message array
// with union semantics: appending an identical entry twice leaves the
// document unchanged. It never overwrites existing entries.
type Store interface {
	Subscribe(conversationID string, onSnapshot func(*Conversation), onError func(error)) (unsubscribe func(), err error)
	AppendMessage(ctx context.Context, conversationID string, msg Message) error
}
