package blob

import "context"

// Store is the external object store contract for audio payloads.
// Put writes bytes under a globally-unique key; DownloadURL resolves a
// durable URL a player can fetch without further credentials.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, key string) (string, error)
}
