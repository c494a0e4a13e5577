package raft

import (
	"encoding/binary"
	"strconv"

	"github.com/KilimcininKorOglu/raftkv/internal/store"
)

// Fixed keys for the durable Raft metadata, held in the same store as the
// log entries.
var (
	keyCurrentTerm  = []byte("m:current_term")
	keyVotedForIP   = []byte("m:voted_for_ip")
	keyVotedForPort = []byte("m:voted_for_port")
	keyCommitIndex  = []byte("m:commit_index")
)

// MetaStore persists the durable Raft metadata: currentTerm, votedFor, and
// commitIndex. Every setter is durable before it returns; this is the
// durability boundary Raft relies on before answering RequestVote or
// AppendEntries.
type MetaStore struct {
	db *store.Store
}

// NewMetaStore creates a MetaStore over db.
func NewMetaStore(db *store.Store) *MetaStore {
	return &MetaStore{db: db}
}

func (m *MetaStore) getUint64(key []byte) uint64 {
	data, err := m.db.Get(key)
	if err != nil || len(data) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(data)
}

func (m *MetaStore) setUint64(key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return m.db.Put(key, buf)
}

// GetCurrentTerm returns the persisted current term, 0 when unset.
func (m *MetaStore) GetCurrentTerm() uint64 {
	return m.getUint64(keyCurrentTerm)
}

// SetCurrentTerm durably stores the current term.
func (m *MetaStore) SetCurrentTerm(term uint64) error {
	return m.setUint64(keyCurrentTerm, term)
}

// GetVotedForIP returns the persisted vote target IP, "" when unset.
func (m *MetaStore) GetVotedForIP() string {
	data, err := m.db.Get(keyVotedForIP)
	if err != nil {
		return ""
	}
	return string(data)
}

// SetVotedForIP durably stores the vote target IP.
func (m *MetaStore) SetVotedForIP(ip string) error {
	return m.db.Put(keyVotedForIP, []byte(ip))
}

// GetVotedForPort returns the persisted vote target port, 0 when unset.
func (m *MetaStore) GetVotedForPort() int {
	data, err := m.db.Get(keyVotedForPort)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return port
}

// SetVotedForPort durably stores the vote target port.
func (m *MetaStore) SetVotedForPort(port int) error {
	return m.db.Put(keyVotedForPort, []byte(strconv.Itoa(port)))
}

// GetCommitIndex returns the persisted commit index, 0 when unset.
func (m *MetaStore) GetCommitIndex() uint64 {
	return m.getUint64(keyCommitIndex)
}

// SetCommitIndex durably stores the commit index.
func (m *MetaStore) SetCommitIndex(index uint64) error {
	return m.setUint64(keyCommitIndex, index)
}
