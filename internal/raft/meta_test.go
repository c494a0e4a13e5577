package raft

import (
	"path/filepath"
	"testing"

	"github.com/KilimcininKorOglu/raftkv/internal/store"
)

func TestMetaStoreDefaults(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	m := NewMetaStore(db)
	if m.GetCurrentTerm() != 0 {
		t.Errorf("GetCurrentTerm = %d, want 0", m.GetCurrentTerm())
	}
	if m.GetVotedForIP() != "" {
		t.Errorf("GetVotedForIP = %q, want empty", m.GetVotedForIP())
	}
	if m.GetVotedForPort() != 0 {
		t.Errorf("GetVotedForPort = %d, want 0", m.GetVotedForPort())
	}
	if m.GetCommitIndex() != 0 {
		t.Errorf("GetCommitIndex = %d, want 0", m.GetCommitIndex())
	}
}

func TestMetaStorePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	db, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	m := NewMetaStore(db)
	if err := m.SetCurrentTerm(12); err != nil {
		t.Fatalf("SetCurrentTerm: %v", err)
	}
	if err := m.SetVotedForIP("10.0.0.3"); err != nil {
		t.Fatalf("SetVotedForIP: %v", err)
	}
	if err := m.SetVotedForPort(9002); err != nil {
		t.Fatalf("SetVotedForPort: %v", err)
	}
	if err := m.SetCommitIndex(34); err != nil {
		t.Fatalf("SetCommitIndex: %v", err)
	}
	db.Close()

	db, err = store.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	m = NewMetaStore(db)

	if m.GetCurrentTerm() != 12 {
		t.Errorf("GetCurrentTerm = %d, want 12", m.GetCurrentTerm())
	}
	if m.GetVotedForIP() != "10.0.0.3" {
		t.Errorf("GetVotedForIP = %q", m.GetVotedForIP())
	}
	if m.GetVotedForPort() != 9002 {
		t.Errorf("GetVotedForPort = %d", m.GetVotedForPort())
	}
	if m.GetCommitIndex() != 34 {
		t.Errorf("GetCommitIndex = %d", m.GetCommitIndex())
	}
}

func TestMetaStoreClearVote(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()

	m := NewMetaStore(db)
	if err := m.SetVotedForIP("10.0.0.3"); err != nil {
		t.Fatalf("SetVotedForIP: %v", err)
	}
	if err := m.SetVotedForIP(""); err != nil {
		t.Fatalf("clear SetVotedForIP: %v", err)
	}
	if m.GetVotedForIP() != "" {
		t.Errorf("GetVotedForIP after clear = %q", m.GetVotedForIP())
	}
}
