// Package history provides a Badger-backed store of batch run summaries.
// The per-archive CSV results log remains the machine interface for
// downstream consumers; this store powers the operator-facing history
// command.
package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// keyPrefix namespaces run records in the store.
const keyPrefix = "run:"

// Run is one recorded batch run.
type Run struct {
	ID          string    `json:"id"`
	Root        string    `json:"root"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
	Total       int       `json:"total"`
	Verified    int       `json:"verified"`
	Failed      int       `json:"failed"`
	Quarantined int       `json:"quarantined"`
	Skipped     int       `json:"skipped"`
}

// NewRun creates a run record with a fresh ID and start time.
func NewRun(root string) *Run {
	return &Run{
		ID:      uuid.NewString(),
		Root:    root,
		Started: time.Now().UTC(),
	}
}

// Store is the run-history store backed by Badger.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists a completed run.
func (s *Store) Record(run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	key := fmt.Sprintf("%s%s:%s", keyPrefix, run.Started.Format(time.RFC3339Nano), run.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// List returns runs newest first. A non-positive limit returns all runs.
func (s *Store) List(limit int) ([]Run, error) {
	var runs []Run

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var run Run
				if err := json.Unmarshal(val, &run); err != nil {
					return nil // skip unparseable records
				}
				runs = append(runs, run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Started.After(runs[j].Started)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
