package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const (
	contentPrefix = "content/"
	versionPrefix = "version/"
)

// BadgerConfig holds configuration for the embedded BadgerDB store.
type BadgerConfig struct {
	// Path is the directory for the database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's own log output. If nil, BadgerDB's
	// internal logging is disabled.
	Logger *logrus.Logger
}

// DefaultBadgerConfig returns the production configuration: on-disk files
// under path with synchronous writes.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// BadgerStore implements Store on an embedded BadgerDB, storing the blob
// and its version under separate keys written in one transaction.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (creating if necessary) a BadgerDB-backed store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{log: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) LoadContent(_ context.Context, documentID string) ([]byte, int64, error) {
	var blob []byte
	var version int64

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(contentPrefix + documentID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		version, err = readVersion(txn, documentID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return blob, version, nil
}

func (s *BadgerStore) SaveContent(_ context.Context, documentID string, blob []byte, expectedVersion int64) (int64, error) {
	var next int64

	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readVersion(txn, documentID)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			next = current
			return ErrStaleVersion
		}

		next = expectedVersion + 1

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(next))

		if err := txn.Set([]byte(contentPrefix+documentID), blob); err != nil {
			return err
		}
		return txn.Set([]byte(versionPrefix+documentID), buf[:])
	})
	if err != nil {
		return next, err
	}

	return next, nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func readVersion(txn *badger.Txn, documentID string) (int64, error) {
	item, err := txn.Get([]byte(versionPrefix + documentID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("malformed version value for %q", documentID)
		}
		version = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return version, err
}

// badgerLogger adapts logrus to BadgerDB's Logger interface.
type badgerLogger struct {
	log *logrus.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
