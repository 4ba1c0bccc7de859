// Package kv provides a persistent key-value store backed by BadgerDB.
// It backs the shared tool result cache for multi-worker deployments.
package kv

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

type KV struct {
	db       *badger.DB
	opts     badger.Options
	closed   bool
	closedMu sync.RWMutex
}

// Options for KV store
type Options struct {
	Dir         string // Data directory
	SyncWrites  bool   // Sync writes to disk
	Compression bool   // Enable compression
	MemoryMode  bool   // In-memory only (no persistence)
}

// DefaultOptions returns default options
func DefaultOptions(dir string) Options {
	return Options{
		Dir:         dir,
		SyncWrites:  false, // Async for performance
		Compression: true,
	}
}

// Open opens a KV store
func Open(opt Options) (*KV, error) {
	if !opt.MemoryMode && opt.Dir == "" {
		opt.Dir = filepath.Join(os.TempDir(), "brandgate-kv")
	}

	opts := badger.DefaultOptions(opt.Dir)
	opts.SyncWrites = opt.SyncWrites
	opts.Logger = nil

	if opt.Compression && !opt.MemoryMode {
		opts.Compression = options.ZSTD
	}
	if opt.MemoryMode {
		opts.InMemory = true
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger failed: %w", err)
	}

	log.Printf("[KV] Opened: %s (memory: %v)", opt.Dir, opt.MemoryMode)
	return &KV{db: db, opts: opts}, nil
}

// OpenMemory opens an in-memory KV store (used by tests and single-worker runs)
func OpenMemory() (*KV, error) {
	return Open(Options{MemoryMode: true})
}

// Close closes the KV store
func (k *KV) Close() error {
	k.closedMu.Lock()
	defer k.closedMu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	return k.db.Close()
}

// ErrNotFound is returned by Get when the key is absent or expired
var ErrNotFound = badger.ErrKeyNotFound

// Set stores value under key
func (k *KV) Set(key string, value []byte) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// SetWithTTL stores value under key with an expiration; Badger drops the
// entry once the TTL elapses.
func (k *KV) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Get returns the value for key, or ErrNotFound
func (k *KV) Get(key string) ([]byte, error) {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return nil, fmt.Errorf("KV is closed")
	}

	var result []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	return result, err
}

// Delete removes a key
func (k *KV) Delete(key string) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Iterate walks keys with the given prefix; fn returning false stops the walk
func (k *KV) Iterate(prefix string, fn func(key string, value []byte) bool) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}

	return k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				continue
			}
			if !fn(string(item.Key()), val) {
				break
			}
		}
		return nil
	})
}

// Count returns the number of keys matching prefix
func (k *KV) Count(prefix string) (int, error) {
	count := 0
	err := k.Iterate(prefix, func(_ string, _ []byte) bool {
		count++
		return true
	})
	return count, err
}

// DeletePrefix deletes all keys with the given prefix
func (k *KV) DeletePrefix(prefix string) error {
	var keys []string
	if err := k.Iterate(prefix, func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		return err
	}

	k.closedMu.RLock()
	defer k.closedMu.RUnlock()
	if k.closed {
		return fmt.Errorf("KV is closed")
	}

	return k.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				log.Printf("[KV] Delete %s failed: %v", key, err)
			}
		}
		return nil
	})
}

// Stats returns store statistics
func (k *KV) Stats() (map[string]interface{}, error) {
	if k.db == nil {
		return nil, fmt.Errorf("KV not initialized")
	}

	var sz int64
	var keyCount int
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(nil); it.Valid(); it.Next() {
			sz += int64(len(it.Item().Key())) + it.Item().EstimatedSize()
			keyCount++
		}
		return nil
	})

	return map[string]interface{}{
		"keys":     keyCount,
		"size_mb":  sz / 1024 / 1024,
		"dir":      k.opts.Dir,
		"inmemory": k.opts.InMemory,
	}, err
}
