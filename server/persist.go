package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/cowrite/cowrite/crdt"
	"github.com/cowrite/cowrite/storage"
)

// persistenceBridge moves document snapshots between the in-memory sequence
// and the content store. Like the registry it is owned by the router
// goroutine. Failures are logged and retried on the next flush; they never
// reach the live editing path.
type persistenceBridge struct {
	store      storage.Store
	documentID string
	log        *logrus.Entry

	// storedVersion is the store's optimistic freshness marker, distinct
	// from the document's own mutation count.
	storedVersion int64
	dirty         bool
}

func newPersistenceBridge(store storage.Store, documentID string, log *logrus.Entry) *persistenceBridge {
	return &persistenceBridge{store: store, documentID: documentID, log: log}
}

// load reads the last persisted snapshot. A missing or malformed blob
// degrades to the empty default so a document can always activate.
func (b *persistenceBridge) load(ctx context.Context) crdt.Snapshot {
	blob, version, err := b.store.LoadContent(ctx, b.documentID)
	if errors.Is(err, storage.ErrNotFound) {
		return crdt.EmptySnapshot()
	}
	if err != nil {
		b.log.WithError(err).Error("failed to load snapshot, starting empty")
		return crdt.EmptySnapshot()
	}

	b.storedVersion = version

	var snap crdt.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		b.log.WithError(err).Error("stored snapshot is malformed, starting empty")
		return crdt.EmptySnapshot()
	}
	return snap
}

// markDirty records that the in-memory state has moved past the stored one.
func (b *persistenceBridge) markDirty() {
	b.dirty = true
}

// flush writes the snapshot if anything changed since the last successful
// write. On a stale-version rejection the marker is refreshed from the
// store and the write retried once; persistent failure leaves the bridge
// dirty for the next periodic tick.
func (b *persistenceBridge) flush(ctx context.Context, snap crdt.Snapshot) {
	if !b.dirty {
		return
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		b.log.WithError(err).Error("failed to encode snapshot")
		return
	}

	next, err := b.store.SaveContent(ctx, b.documentID, blob, b.storedVersion)
	if errors.Is(err, storage.ErrStaleVersion) {
		b.log.WithField("storedVersion", b.storedVersion).Warn("snapshot version stale, refreshing")
		b.storedVersion = next
		next, err = b.store.SaveContent(ctx, b.documentID, blob, b.storedVersion)
	}
	if err != nil {
		b.log.WithError(err).Error("failed to persist snapshot")
		return
	}

	b.storedVersion = next
	b.dirty = false
}
