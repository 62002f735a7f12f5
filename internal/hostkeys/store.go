// Package hostkeys implements the C13 host-key cache: a tiny on-disk
// key-value store mapping an upstream "host:port" to the last DER-encoded
// server public key the proxy observed there, so a later session can warn
// (advisory only, never fatal) if the key has changed.
//
// The storage layer is adapted from the teacher's own ethdb.BadgerDB
// (ethdb/badger.go): same embedded KV engine, same snappy-compressed value
// encoding, narrowed from the teacher's general key/value Database
// interface (batches, transactions, deletes — none of which this cache
// needs) down to the two operations the handshake actually calls.
package hostkeys

import (
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/dgraph-io/badger/options"
	"github.com/golang/snappy"
)

// Store is a small embedded key-value cache, one entry per upstream host.
type Store struct {
	kv *badger.KV
}

// Open creates or reopens the cache rooted at directory (typically
// <capture-dir>/hostkeys).
func Open(directory string) (*Store, error) {
	opts := badger.DefaultOptions
	opts.Dir = directory
	opts.ValueDir = directory
	opts.TableLoadingMode = options.MemoryMap
	opts.SyncWrites = true
	kv, err := badger.NewKV(&opts)
	if err != nil {
		return nil, fmt.Errorf("hostkeys: open store: %w", err)
	}
	return &Store{kv: kv}, nil
}

// Lookup returns the last-recorded DER public key for host, if any.
// Implements handshake.HostKeyCache.
func (s *Store) Lookup(host string) ([]byte, bool) {
	var item badger.KVItem
	if err := s.kv.Get([]byte(host), &item); err != nil {
		return nil, false
	}
	var val []byte
	var decodeErr error
	item.Value(func(v []byte) {
		val, decodeErr = snappy.Decode(nil, v)
	})
	if decodeErr != nil || val == nil {
		return nil, false
	}
	return val, true
}

// Record persists der as the latest known public key for host. Implements
// handshake.HostKeyCache.
func (s *Store) Record(host string, der []byte) error {
	if err := s.kv.Set([]byte(host), snappy.Encode(nil, der), 0); err != nil {
		return fmt.Errorf("hostkeys: record %s: %w", host, err)
	}
	return nil
}

// Close releases the underlying store.
func (s *Store) Close() error {
	return s.kv.Close()
}
