// Package sstore persists distribution records in BadgerDB. The record field
// set is the contract; the JSON byte layout here is an implementation choice
// of this collaborator, not part of the subsystem boundary.
package sstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/scatter-engine/scatter/sshard"
)

// prefixDistribution is the key prefix for distribution records.
const prefixDistribution = "dist:shard:"

// ErrNotFound indicates no distribution record exists for the shard ID.
var ErrNotFound = errors.New("distribution record not found")

// Store keeps DistributedShard records in a Badger database.
type Store struct {
	log *slog.Logger
	db  *badger.DB
}

// Open opens (or creates) a store at path.
func Open(log *slog.Logger, path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return open(log, opts)
}

// OpenInMemory opens a store that lives only for the process, used in tests
// and dry runs.
func OpenInMemory(log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(log, opts)
}

func open(log *slog.Logger, opts badger.Options) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &Store{log: log, db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes the distribution record, replacing any previous record for the
// same shard (as healing does).
func (s *Store) Put(ds *sshard.DistributedShard) error {
	val, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to encode distribution record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(ds.Shard.ID), val)
	})
	if err != nil {
		return fmt.Errorf("failed to write distribution record: %w", err)
	}
	return nil
}

// Get reads the distribution record for a shard ID.
func (s *Store) Get(shardID string) (*sshard.DistributedShard, error) {
	var ds sshard.DistributedShard
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(shardID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ds)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: shard %s", ErrNotFound, shardID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read distribution record: %w", err)
	}
	return &ds, nil
}

// ShardIDs lists every shard ID with a stored distribution record.
func (s *Store) ShardIDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixDistribution)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list distribution records: %w", err)
	}
	return ids, nil
}

func key(shardID string) []byte {
	return []byte(prefixDistribution + shardID)
}
