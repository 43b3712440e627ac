// Package signalstore persists processed-signal flags across restarts.
// It backs the second tier of the duplicate guard: a flag survives a
// crash, so a replayed signal can never re-execute its original leg.
package signalstore

import (
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const processedPrefix = "processed:"

// Store is a small badger-backed flag store keyed by SignalId.
type Store struct {
	db *badger.DB
}

// Open creates or opens the store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func key(signalID string, opposite bool) []byte {
	if opposite {
		return []byte(processedPrefix + signalID + ":opp")
	}
	return []byte(processedPrefix + signalID)
}

// MarkProcessed records that a leg of signalID reached a confirmed
// fill. Set only on fill, never on "pending created".
func (s *Store) MarkProcessed(signalID string, opposite bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		val := time.Now().UTC().Format(time.RFC3339Nano)
		return txn.Set(key(signalID, opposite), []byte(val))
	})
}

// IsProcessed reports whether that leg of signalID already filled.
func (s *Store) IsProcessed(signalID string, opposite bool) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(signalID, opposite))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Close flushes and closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}
