package raft

import (
	"sync"
	"time"

	"github.com/KilimcininKorOglu/raftkv/internal/logging"
	"github.com/KilimcininKorOglu/raftkv/internal/store"
)

// applyWaitSlice bounds each wait for apply progress; a client command whose
// entry shows no progress for one slice times out.
const applyWaitSlice = time.Second

// Apply owns the background worker that drains committed-but-unapplied log
// entries into the key-value store and advances lastApplied.
//
// lastApplied is not persisted: recovery restarts it at zero and replays the
// committed prefix, which is idempotent against the key-value store.
type Apply struct {
	ctx    *Context
	db     *store.Store
	log    *LogStore
	logger logging.Logger

	// wakeCh has capacity 1 so redundant schedule requests collapse.
	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	waitersMu sync.Mutex
	waiters   []chan struct{}
}

// NewApply creates the apply worker. Start must be called before
// ScheduleApply has any effect.
func NewApply(ctx *Context, db *store.Store, log *LogStore, logger logging.Logger) *Apply {
	return &Apply{
		ctx:    ctx,
		db:     db,
		log:    log,
		logger: logger,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the worker and schedules an initial pass to replay the
// committed prefix after recovery.
func (a *Apply) Start() {
	go a.run()
	a.ScheduleApply()
}

// Stop terminates the worker. In-flight store writes finish first.
func (a *Apply) Stop() {
	close(a.stopCh)
	<-a.doneCh
}

// ScheduleApply enqueues one apply pass. It never blocks; duplicate
// requests collapse.
func (a *Apply) ScheduleApply() {
	select {
	case a.wakeCh <- struct{}{}:
	default:
	}
}

func (a *Apply) run() {
	defer close(a.doneCh)
	for {
		select {
		case <-a.stopCh:
			return
		case <-a.wakeCh:
			a.drain()
		}
	}
}

// drain applies entries until lastApplied catches up with commitIndex. A
// key-value store write failure stops the pass; the entry is retried on the
// next schedule and lastApplied does not advance past it.
func (a *Apply) drain() {
	for {
		a.ctx.commitIndexMu.Lock()
		commitIndex := a.ctx.commitIndex
		a.ctx.commitIndexMu.Unlock()

		a.ctx.applyMu.Lock()
		lastApplied := a.ctx.lastApplied
		a.ctx.applyMu.Unlock()

		if lastApplied >= commitIndex {
			return
		}

		next := lastApplied + 1
		entry, err := a.log.GetEntry(next)
		if err != nil {
			a.logger.Error("apply: fetch entry failed", "index", next, "error", err)
			return
		}

		switch entry.Op {
		case OpWrite:
			err = a.db.Put(entry.Key, entry.Value)
		case OpDelete:
			err = a.db.Delete(entry.Key)
		case OpRead:
			// Read entries are barriers only.
		}
		if err != nil {
			a.logger.Error("apply: state write failed", "index", next, "error", err)
			return
		}

		a.ctx.applyMu.Lock()
		a.ctx.lastApplied = next
		a.ctx.applyMu.Unlock()

		a.notifyWaiters()
	}
}

// LastApplied returns the last applied index.
func (a *Apply) LastApplied() uint64 {
	a.ctx.applyMu.Lock()
	defer a.ctx.applyMu.Unlock()
	return a.ctx.lastApplied
}

// WaitApplied blocks until lastApplied reaches index. It returns false when
// one full wait slice passes without any apply progress; the pending entry
// is not revoked. Spurious wakeups are fine because the predicate is
// re-checked.
func (a *Apply) WaitApplied(index uint64) bool {
	ch := make(chan struct{}, 1)
	a.addWaiter(ch)
	defer a.removeWaiter(ch)

	timer := time.NewTimer(applyWaitSlice)
	defer timer.Stop()

	for {
		if a.LastApplied() >= index {
			return true
		}
		select {
		case <-ch:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(applyWaitSlice)
		case <-timer.C:
			return a.LastApplied() >= index
		case <-a.stopCh:
			return false
		}
	}
}

func (a *Apply) addWaiter(ch chan struct{}) {
	a.waitersMu.Lock()
	defer a.waitersMu.Unlock()
	a.waiters = append(a.waiters, ch)
}

func (a *Apply) removeWaiter(ch chan struct{}) {
	a.waitersMu.Lock()
	defer a.waitersMu.Unlock()
	for i, w := range a.waiters {
		if w == ch {
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			return
		}
	}
}

func (a *Apply) notifyWaiters() {
	a.waitersMu.Lock()
	defer a.waitersMu.Unlock()
	for _, w := range a.waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
