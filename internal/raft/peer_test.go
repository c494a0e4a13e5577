package raft

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/KilimcininKorOglu/raftkv/internal/logging"
	"github.com/KilimcininKorOglu/raftkv/internal/store"
)

// peerFixture wires a single Peer against a scripted remote handler on an
// in-memory network.
type peerFixture struct {
	peer *Peer
	ctx  *Context
	log  *LogStore
	meta *MetaStore
}

func newPeerFixture(t *testing.T, remote RPCHandler) *peerFixture {
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
	meta := NewMetaStore(logDB)

	opts := &Options{
		LocalIP:         "10.0.0.1",
		LocalPort:       9000,
		Members:         []string{"10.0.0.1:9000", "10.0.0.2:9000"},
		Path:            dir,
		Heartbeat:       20 * time.Millisecond,
		ElectionTimeout: 150 * time.Millisecond,
	}

	network := NewInMemoryNetwork()
	pool := network.NewTransport("10.0.0.1:9000")
	remoteTransport := network.NewTransport("10.0.0.2:9000")
	if err := remoteTransport.Listen(remote); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx := NewContext(opts)
	apply := NewApply(ctx, db, l, logging.Nop())
	peer := NewPeer("10.0.0.2:9000", ctx, l, meta, apply, pool, opts, logging.Nop())
	peer.SetPeers(map[string]*Peer{"10.0.0.2:9000": peer})

	return &peerFixture{peer: peer, ctx: ctx, log: l, meta: meta}
}

func TestPeerRequestVoteWinsElection(t *testing.T) {
	f := newPeerFixture(t, func(msgType uint8, data []byte) []byte {
		args, err := DeserializeRequestVoteArgs(data)
		if err != nil {
			t.Errorf("remote got corrupted args: %v", err)
			return nil
		}
		return (&RequestVoteReply{Term: args.Term, VoteGranted: true}).Serialize()
	})
	mustAppend(t, f.log, &LogEntry{Term: 1, Op: OpWrite, Key: []byte("a")})

	f.ctx.commitMu.Lock()
	f.ctx.BecomeCandidate()
	f.ctx.commitMu.Unlock()

	f.peer.requestVote()

	f.ctx.commitMu.Lock()
	defer f.ctx.commitMu.Unlock()
	if f.ctx.role != RoleLeader {
		t.Fatalf("role = %v, want leader", f.ctx.role)
	}
	if f.peer.nextIndex != 2 || f.peer.matchIndex != 0 {
		t.Errorf("counters = next %d match %d, want 2/0", f.peer.nextIndex, f.peer.matchIndex)
	}
	select {
	case task := <-f.peer.taskCh:
		if task != taskAppendEntries {
			t.Errorf("queued task = %v, want append entries", task)
		}
	default:
		t.Error("no immediate heartbeat queued after winning")
	}
}

func TestPeerRequestVoteStaleTermDemotes(t *testing.T) {
	f := newPeerFixture(t, func(msgType uint8, data []byte) []byte {
		return (&RequestVoteReply{Term: 10, VoteGranted: false}).Serialize()
	})

	f.ctx.commitMu.Lock()
	f.ctx.BecomeCandidate()
	f.ctx.commitMu.Unlock()

	f.peer.requestVote()

	f.ctx.commitMu.Lock()
	defer f.ctx.commitMu.Unlock()
	if f.ctx.role != RoleFollower {
		t.Errorf("role = %v, want follower", f.ctx.role)
	}
	if f.ctx.currentTerm != 10 {
		t.Errorf("currentTerm = %d, want 10", f.ctx.currentTerm)
	}
	if f.meta.GetCurrentTerm() != 10 {
		t.Errorf("persisted term = %d, want 10", f.meta.GetCurrentTerm())
	}
}

func TestPeerRequestVoteIgnoredWhenNotCandidate(t *testing.T) {
	called := false
	f := newPeerFixture(t, func(msgType uint8, data []byte) []byte {
		called = true
		return (&RequestVoteReply{VoteGranted: true}).Serialize()
	})

	f.peer.requestVote()

	if called {
		t.Error("sent RequestVote while follower")
	}
}

func TestPeerAppendEntriesAdvancesCommit(t *testing.T) {
	f := newPeerFixture(t, func(msgType uint8, data []byte) []byte {
		args, err := DeserializeAppendEntriesArgs(data)
		if err != nil {
			t.Errorf("remote got corrupted args: %v", err)
			return nil
		}
		return (&AppendEntriesReply{
			Term:         args.Term,
			Success:      true,
			LastLogIndex: args.PrevLogIndex + uint64(len(args.Entries)),
		}).Serialize()
	})

	f.ctx.commitMu.Lock()
	f.ctx.BecomeCandidate()
	f.ctx.BecomeLeader()
	f.ctx.commitMu.Unlock()
	mustAppend(t, f.log,
		&LogEntry{Term: 1, Op: OpWrite, Key: []byte("a"), Value: []byte("1")},
		&LogEntry{Term: 1, Op: OpWrite, Key: []byte("b"), Value: []byte("2")})
	f.peer.nextIndex = 1

	f.peer.appendEntries()

	f.ctx.commitMu.Lock()
	defer f.ctx.commitMu.Unlock()
	if f.peer.matchIndex != 2 || f.peer.nextIndex != 3 {
		t.Errorf("counters = match %d next %d, want 2/3", f.peer.matchIndex, f.peer.nextIndex)
	}
	if f.ctx.commitIndex != 2 {
		t.Errorf("commitIndex = %d, want 2 (majority of 2/2)", f.ctx.commitIndex)
	}
	if f.meta.GetCommitIndex() != 2 {
		t.Errorf("persisted commitIndex = %d, want 2", f.meta.GetCommitIndex())
	}
}

func TestPeerAppendEntriesRollsBackOnReject(t *testing.T) {
	f := newPeerFixture(t, func(msgType uint8, data []byte) []byte {
		args, _ := DeserializeAppendEntriesArgs(data)
		return (&AppendEntriesReply{Term: args.Term, Success: false, LastLogIndex: 1}).Serialize()
	})

	f.ctx.commitMu.Lock()
	f.ctx.BecomeCandidate()
	f.ctx.BecomeLeader()
	f.ctx.commitMu.Unlock()
	for i := 0; i < 5; i++ {
		mustAppend(t, f.log, &LogEntry{Term: 1, Op: OpWrite, Key: []byte{byte('a' + i)}})
	}
	f.peer.nextIndex = 5

	f.peer.appendEntries()

	f.ctx.commitMu.Lock()
	if f.peer.nextIndex != 2 {
		t.Errorf("nextIndex = %d, want 2 (follower tail + 1)", f.peer.nextIndex)
	}
	f.ctx.commitMu.Unlock()

	select {
	case task := <-f.peer.taskCh:
		if task != taskAppendEntries {
			t.Errorf("queued task = %v", task)
		}
	default:
		t.Error("rejected append not re-enqueued")
	}

	// A reply whose tail is not behind nextIndex steps back by one, but
	// never below 1.
	f.peer.nextIndex = 1
	f.peer.appendEntries()
	f.ctx.commitMu.Lock()
	if f.peer.nextIndex < 1 {
		t.Errorf("nextIndex = %d, fell below 1", f.peer.nextIndex)
	}
	f.ctx.commitMu.Unlock()
}

func TestPeerAppendEntriesNetworkFailureKeepsCounters(t *testing.T) {
	f := newPeerFixture(t, nil) // remote has no handler registered

	f.ctx.commitMu.Lock()
	f.ctx.BecomeCandidate()
	f.ctx.BecomeLeader()
	f.ctx.commitMu.Unlock()
	mustAppend(t, f.log, &LogEntry{Term: 1, Op: OpWrite, Key: []byte("a")})
	f.peer.nextIndex = 1
	f.peer.matchIndex = 0

	f.peer.appendEntries()

	f.ctx.commitMu.Lock()
	defer f.ctx.commitMu.Unlock()
	if f.peer.nextIndex != 1 || f.peer.matchIndex != 0 {
		t.Errorf("counters changed on network failure: next %d match %d",
			f.peer.nextIndex, f.peer.matchIndex)
	}
	if f.ctx.commitIndex != 0 {
		t.Errorf("commitIndex advanced on network failure: %d", f.ctx.commitIndex)
	}
}

func TestPeerQueueDropsWhenFull(t *testing.T) {
	f := newPeerFixture(t, nil)
	// Worker not started: fill the queue beyond capacity. Must not block.
	for i := 0; i < 200; i++ {
		f.peer.AddAppendEntriesTask()
	}
}
