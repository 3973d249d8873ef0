// Package perftcache memoizes perft leaf counts keyed by FEN and depth.
// It exists purely to speed up repeated correctness runs against the same
// handful of reference positions; nothing here is part of search or game
// state, and the store never touches disk.
package perftcache

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
)

// Cache stores perft(fen, depth) -> node count in an in-memory BadgerDB
// instance. Options.InMemory means no files are ever created on disk.
type Cache struct {
	db *badger.DB
}

// Open creates a perft cache. The returned Cache must be closed with Close.
func Open() (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Cache{db: db}, nil
}

// Close releases the in-memory store.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(fen string, depth int) []byte {
	h := xxhash.Sum64String(fmt.Sprintf("%s:%d", fen, depth))
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, h)
	return key
}

// Get returns the cached leaf count for fen at depth, if present.
func (c *Cache) Get(fen string, depth int) (nodes uint64, found bool) {
	key := cacheKey(fen, depth)

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				found = false
				return nil
			}
			nodes = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return 0, false
	}
	return nodes, found
}

// Store records the leaf count for fen at depth.
func (c *Cache) Store(fen string, depth int, nodes uint64) error {
	key := cacheKey(fen, depth)
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, nodes)

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}
