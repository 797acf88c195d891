/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

// Package task persists the index → remote task id mapping so a separate
// process can poll transfer completion after the submitting one exits.
package task

import (
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/pkg/errors"

	"infini.sh/migrate/core/util"
)

// Record maps one index to the async reindex task copying it
type Record struct {
	Index     string    `json:"index"`
	TaskID    string    `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a durable key value mapping backed by badger. Badger holds a
// directory lock for the writing process, a poll-only process opens the
// same directory read-only.
type Store struct {
	mu sync.RWMutex
	db *badger.DB
}

type storeLogger struct{}

func (l *storeLogger) Errorf(format string, args ...interface{})   {}
func (l *storeLogger) Warningf(format string, args ...interface{}) {}
func (l *storeLogger) Infof(format string, args ...interface{})    {}
func (l *storeLogger) Debugf(format string, args ...interface{})   {}

// OpenStore opens or creates the store at dir
func OpenStore(dir string, readOnly bool) (*Store, error) {
	option := badger.DefaultOptions(dir)
	option.ReadOnly = readOnly
	option.NumGoroutines = 1
	option.Compression = options.None
	option.MetricsEnabled = false
	option.CompactL0OnClose = true
	option.SyncWrites = true
	option.Logger = &storeLogger{}

	db, err := badger.Open(option)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open task store at [%v]", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Set records one index → task id pair, overwriting a previous attempt
func (s *Store) Set(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(rec.Index), util.MustToJSONBytes(rec))
	})
}

// ErrNotFound means no task was ever recorded for the index
var ErrNotFound = errors.New("no task recorded for index")

// Get returns the record of one index
func (s *Store) Get(index string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(index))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return util.FromJSONBytes(val, &rec)
		})
	})
	return rec, err
}

// All returns every record, ordered by index name
func (s *Store) All() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rec := Record{}
			err := it.Item().Value(func(val []byte) error {
				return util.FromJSONBytes(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Delete removes the record of one index, operator action only
func (s *Store) Delete(index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(index))
	})
}
