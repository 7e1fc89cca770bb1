package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSettings = []byte("settings")
	bucketMeta     = []byte("meta")
	keyDocument    = []byte("document")
	keySavedAt     = []byte("saved_at")
)

// BoltBackend implements Backend using BoltDB. The document is stored as
// YAML under a single key so both backends share one format.
type BoltBackend struct {
	db   *bolt.DB
	path string
}

// NewBoltBackend opens or creates a BoltDB database.
func NewBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSettings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltBackend{db: db, path: path}, nil
}

func (s *BoltBackend) Load() (any, string, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSettings)
		}
		// Values are only valid inside the transaction.
		if v := b.Get(keyDocument); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, s.path, err
	}
	if data == nil {
		return nil, "", nil
	}
	raw, err := decodeDocument(data)
	if err != nil {
		return nil, s.path, fmt.Errorf("parse document: %w", err)
	}
	return raw, s.path, nil
}

func (s *BoltBackend) Prepare() error { return nil }

func (s *BoltBackend) Save(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSettings)
		}
		if err := b.Put(keyDocument, data); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return fmt.Errorf("bucket %q not found", bucketMeta)
		}
		return meta.Put(keySavedAt, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
}

// SavedAt returns the time of the last successful Save.
func (s *BoltBackend) SavedAt() (time.Time, error) {
	var at time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return fmt.Errorf("bucket %q not found", bucketMeta)
		}
		v := meta.Get(keySavedAt)
		if v == nil {
			return fmt.Errorf("saved_at: %w", ErrNotFound)
		}
		var err error
		at, err = time.Parse(time.RFC3339Nano, string(v))
		return err
	})
	return at, err
}

func (s *BoltBackend) Location() string { return s.path }

func (s *BoltBackend) Close() error {
	return s.db.Close()
}
