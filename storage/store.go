// Package storage provides the durable content store consumed by the
// persistence bridge: an opaque blob per document id, with a version used
// as an optimistic freshness marker.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no content exists for a document.
	ErrNotFound = errors.New("document content not found")

	// ErrStaleVersion is returned when a save carries an expected version
	// that no longer matches the stored one. It is a freshness signal, not
	// a lock; callers refresh and retry.
	ErrStaleVersion = errors.New("stale document version")
)

// Store is the external persistence collaborator.
// All implementations must be safe for concurrent use.
type Store interface {
	// LoadContent returns the stored blob and its version.
	// Returns ErrNotFound if nothing has been stored for the document.
	LoadContent(ctx context.Context, documentID string) ([]byte, int64, error)

	// SaveContent stores the blob if expectedVersion matches the stored
	// version (0 for a first write) and returns the new version.
	// Returns ErrStaleVersion on a mismatch.
	SaveContent(ctx context.Context, documentID string, blob []byte, expectedVersion int64) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
