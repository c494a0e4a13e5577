package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store errors.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("store: key not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store: closed")
)

// syncWrites makes every write durable before returning. Raft relies on this
// as its durability boundary, so it is not configurable.
var syncWrites = &opt.WriteOptions{Sync: true}

// Store is an ordered, byte-keyed durable store.
type Store struct {
	db     *leveldb.DB
	closed bool
}

// Open opens (creating if missing) the store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	value, err := s.db.Get(key, nil)
	if err == ldberrors.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put durably stores value under key.
func (s *Store) Put(key, value []byte) error {
	if s.closed {
		return ErrClosed
	}
	return s.db.Put(key, value, syncWrites)
}

// Delete durably removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key []byte) error {
	if s.closed {
		return ErrClosed
	}
	return s.db.Delete(key, syncWrites)
}

// WriteBatch durably applies a set of puts and deletes atomically.
func (s *Store) WriteBatch(batch *Batch) error {
	if s.closed {
		return ErrClosed
	}
	return s.db.Write(&batch.b, syncWrites)
}

// NewPrefixIterator returns an iterator over all keys with the given prefix,
// in ascending key order. The caller must Release it.
func (s *Store) NewPrefixIterator(prefix []byte) iterator.Iterator {
	return s.db.NewIterator(util.BytesPrefix(prefix), nil)
}

// Close closes the store. Further operations return ErrClosed.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Batch accumulates puts and deletes for a single atomic write.
type Batch struct {
	b leveldb.Batch
}

// Put adds a put to the batch.
func (b *Batch) Put(key, value []byte) {
	b.b.Put(key, value)
}

// Delete adds a delete to the batch.
func (b *Batch) Delete(key []byte) {
	b.b.Delete(key)
}

// Len returns the number of operations in the batch.
func (b *Batch) Len() int {
	return b.b.Len()
}
