// Package bolt is the production Store implementation: a single-file bbolt
// database. Each Save/Delete runs in its own write transaction, which gives
// the crash atomicity the store contract requires.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/tapcard/terminal/internal/terminal/store"
)

var bucketName = []byte("terminal_state")

type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database file and ensures the state
// bucket exists. The open timeout keeps a second process from blocking
// forever on the file lock.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", store.ErrStorage, path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create bucket: %v", store.ErrStorage, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: marshal %q: %v", store.ErrStorage, key, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: put %q: %v", store.ErrStorage, key, err)
	}
	return nil
}

func (s *Store) Load(_ context.Context, key string, out any) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: get %q: %v", store.ErrStorage, key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%w: unmarshal %q: %v", store.ErrStorage, key, err)
	}
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %q: %v", store.ErrStorage, key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
