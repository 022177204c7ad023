// Package content provides clients for the content-addressed blob store.
// Storing a blob returns a content identifier (CID); fetching by that
// identifier returns the same bytes.
package content

import "context"

// Store pins evidence bytes and retrieves them by content identifier.
// Implementations return sentinel.ErrNotFound for unknown identifiers and
// sentinel.ErrUnavailable (wrapped) when the backing service is unreachable.
type Store interface {
	Put(ctx context.Context, data []byte, name, mimeType string) (string, error)
	Get(ctx context.Context, contentID string) ([]byte, error)
}
