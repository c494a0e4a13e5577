package raft

import (
	"encoding/binary"
	"sync"

	"github.com/KilimcininKorOglu/raftkv/internal/store"
)

// entryKeyPrefix namespaces log entries in the log store so they sort below
// the metadata keys and iterate in index order.
const entryKeyPrefix = 0x01

func entryKey(index uint64) []byte {
	key := make([]byte, 9)
	key[0] = entryKeyPrefix
	binary.BigEndian.PutUint64(key[1:], index)
	return key
}

// LogStore persists ordered log entries by index. Entries are keyed by
// big-endian index so ordered iteration matches log order. Appends are
// serialized by the caller: only the leader appends locally, and followers
// append under the commit mutex.
type LogStore struct {
	db        *store.Store
	lastIndex uint64
	lastTerm  uint64
	mu        sync.RWMutex
}

// NewLogStore opens a log store over db, recovering the last index and term
// from the persisted tail.
func NewLogStore(db *store.Store) (*LogStore, error) {
	l := &LogStore{db: db}

	it := db.NewPrefixIterator([]byte{entryKeyPrefix})
	defer it.Release()
	if it.Last() {
		entry, err := DeserializeLogEntry(it.Value())
		if err != nil {
			return nil, err
		}
		l.lastIndex = entry.Index
		l.lastTerm = entry.Term
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return l, nil
}

// Append atomically appends entries at the current tail and returns the index
// of the last appended entry. The entries' Index fields are assigned here.
func (l *LogStore) Append(entries []*LogEntry) (uint64, error) {
	if len(entries) == 0 {
		return 0, ErrIO
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var batch store.Batch
	index := l.lastIndex
	for _, e := range entries {
		index++
		e.Index = index
		batch.Put(entryKey(index), e.Serialize())
	}
	if err := l.db.WriteBatch(&batch); err != nil {
		return 0, err
	}
	l.lastIndex = index
	l.lastTerm = entries[len(entries)-1].Term
	return index, nil
}

// GetEntry returns the entry at index. Index 0 yields the sentinel entry
// with term 0.
func (l *LogStore) GetEntry(index uint64) (*LogEntry, error) {
	if index == 0 {
		return &LogEntry{Term: 0, Index: 0}, nil
	}
	data, err := l.db.Get(entryKey(index))
	if err == store.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return DeserializeLogEntry(data)
}

// GetRange returns the entries in [from, to], capped at limit entries.
func (l *LogStore) GetRange(from, to uint64, limit int) ([]*LogEntry, error) {
	var entries []*LogEntry
	for index := from; index <= to && len(entries) < limit; index++ {
		e, err := l.GetEntry(index)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetLastLogTermAndIndex returns the term and index of the last entry, or
// (0, 0) when the log is empty.
func (l *LogStore) GetLastLogTermAndIndex() (uint64, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastTerm, l.lastIndex
}

// GetLastLogIndex returns the index of the last entry.
func (l *LogStore) GetLastLogIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastIndex
}

// TruncateSuffix durably deletes all entries with index >= from. A from of
// 0 or past the tail leaves the log unchanged.
func (l *LogStore) TruncateSuffix(from uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from == 0 || from > l.lastIndex {
		return nil
	}

	var batch store.Batch
	for index := from; index <= l.lastIndex; index++ {
		batch.Delete(entryKey(index))
	}
	if err := l.db.WriteBatch(&batch); err != nil {
		return err
	}

	l.lastIndex = from - 1
	if l.lastIndex == 0 {
		l.lastTerm = 0
		return nil
	}
	data, err := l.db.Get(entryKey(l.lastIndex))
	if err != nil {
		return err
	}
	entry, err := DeserializeLogEntry(data)
	if err != nil {
		return err
	}
	l.lastTerm = entry.Term
	return nil
}
