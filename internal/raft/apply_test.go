package raft

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/KilimcininKorOglu/raftkv/internal/logging"
	"github.com/KilimcininKorOglu/raftkv/internal/store"
)

func newTestApply(t *testing.T) (*Apply, *Context, *LogStore, *store.Store) {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("store.Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logDB, err := store.Open(filepath.Join(dir, "log"))
	if err != nil {
		t.Fatalf("store.Open log: %v", err)
	}
	t.Cleanup(func() { logDB.Close() })

	l, err := NewLogStore(logDB)
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}

	ctx := NewContext(testOptions())
	a := NewApply(ctx, db, l, logging.Nop())
	return a, ctx, l, db
}

func TestApplyDrainsCommittedEntries(t *testing.T) {
	a, ctx, l, db := newTestApply(t)

	mustAppend(t, l,
		&LogEntry{Term: 1, Op: OpWrite, Key: []byte("a"), Value: []byte("1")},
		&LogEntry{Term: 1, Op: OpWrite, Key: []byte("b"), Value: []byte("2")},
		&LogEntry{Term: 1, Op: OpDelete, Key: []byte("a")},
		&LogEntry{Term: 1, Op: OpRead, Key: []byte("b")})
	ctx.commitIndex = 4

	a.Start()
	defer a.Stop()

	if !a.WaitApplied(4) {
		t.Fatal("WaitApplied(4) timed out")
	}
	if got := a.LastApplied(); got != 4 {
		t.Errorf("LastApplied = %d, want 4", got)
	}

	if _, err := db.Get([]byte("a")); err != store.ErrNotFound {
		t.Errorf("deleted key a: err = %v, want ErrNotFound", err)
	}
	v, err := db.Get([]byte("b"))
	if err != nil || string(v) != "2" {
		t.Errorf("key b = %q, %v", v, err)
	}
}

func TestApplyStopsAtCommitIndex(t *testing.T) {
	a, ctx, l, _ := newTestApply(t)

	mustAppend(t, l,
		&LogEntry{Term: 1, Op: OpWrite, Key: []byte("a"), Value: []byte("1")},
		&LogEntry{Term: 1, Op: OpWrite, Key: []byte("b"), Value: []byte("2")})
	ctx.commitIndex = 1

	a.Start()
	defer a.Stop()

	if !a.WaitApplied(1) {
		t.Fatal("WaitApplied(1) timed out")
	}
	// Give the worker a chance to overrun, which it must not.
	time.Sleep(20 * time.Millisecond)
	if got := a.LastApplied(); got != 1 {
		t.Errorf("LastApplied = %d, want 1 (commitIndex)", got)
	}
}

func TestApplyResumesAfterCommitAdvance(t *testing.T) {
	a, ctx, l, db := newTestApply(t)

	mustAppend(t, l, &LogEntry{Term: 1, Op: OpWrite, Key: []byte("a"), Value: []byte("1")})
	ctx.commitIndex = 1

	a.Start()
	defer a.Stop()
	if !a.WaitApplied(1) {
		t.Fatal("WaitApplied(1) timed out")
	}

	mustAppend(t, l, &LogEntry{Term: 1, Op: OpWrite, Key: []byte("c"), Value: []byte("3")})
	ctx.commitIndexMu.Lock()
	ctx.commitIndex = 2
	ctx.commitIndexMu.Unlock()
	a.ScheduleApply()

	if !a.WaitApplied(2) {
		t.Fatal("WaitApplied(2) timed out")
	}
	v, err := db.Get([]byte("c"))
	if err != nil || string(v) != "3" {
		t.Errorf("key c = %q, %v", v, err)
	}
}

func TestApplyScheduleCollapses(t *testing.T) {
	a, _, _, _ := newTestApply(t)
	// Not started: the wake channel must absorb any number of schedules
	// without blocking.
	for i := 0; i < 100; i++ {
		a.ScheduleApply()
	}
}

func TestWaitAppliedTimesOut(t *testing.T) {
	a, _, _, _ := newTestApply(t)
	a.Start()
	defer a.Stop()

	start := time.Now()
	if a.WaitApplied(5) {
		t.Fatal("WaitApplied succeeded with nothing committed")
	}
	if elapsed := time.Since(start); elapsed < applyWaitSlice {
		t.Errorf("WaitApplied returned after %v, want at least %v", elapsed, applyWaitSlice)
	}
}
