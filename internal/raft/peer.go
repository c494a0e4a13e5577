package raft

import (
	"github.com/KilimcininKorOglu/raftkv/internal/logging"
)

// maxEntriesPerRPC caps the number of entries carried by one AppendEntries
// request.
const maxEntriesPerRPC = 128

// peerTask is a tag dispatched on a peer's task queue.
type peerTask uint8

const (
	taskRequestVote peerTask = iota
	taskAppendEntries
)

// Peer replicates to one remote member. Each peer owns a strictly FIFO,
// single-consumer task queue; its two task kinds are idempotent when
// enqueued repeatedly, so producers drop tasks when the queue is full.
//
// nextIndex and matchIndex are guarded by ctx.commitMu, as is every role or
// term observation. The mutex is never held across RPC I/O.
type Peer struct {
	addr string

	ctx    *Context
	log    *LogStore
	meta   *MetaStore
	apply  *Apply
	pool   Transport
	opts   *Options
	logger logging.Logger

	// peers is the full replicator set, shared immutable-after-init; used
	// for quorum counting and for priming heartbeats on election win.
	peers map[string]*Peer

	nextIndex  uint64
	matchIndex uint64

	taskCh chan peerTask
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPeer creates a replicator for the remote member at addr.
func NewPeer(addr string, ctx *Context, log *LogStore, meta *MetaStore, apply *Apply, pool Transport, opts *Options, logger logging.Logger) *Peer {
	return &Peer{
		addr:   addr,
		ctx:    ctx,
		log:    log,
		meta:   meta,
		apply:  apply,
		pool:   pool,
		opts:   opts,
		logger: logger.WithFields("peer", addr),
		taskCh: make(chan peerTask, 64),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// SetPeers hands the peer the full replicator set. Must be called before
// Start.
func (p *Peer) SetPeers(peers map[string]*Peer) {
	p.peers = peers
}

// Start launches the task worker.
func (p *Peer) Start() {
	go p.run()
}

// Stop terminates the worker after the current task; queued tasks are
// dropped. An in-flight RPC honours its own timeout.
func (p *Peer) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// AddRequestVoteTask enqueues a vote solicitation. Never blocks.
func (p *Peer) AddRequestVoteTask() {
	p.enqueue(taskRequestVote)
}

// AddAppendEntriesTask enqueues a replication round. Never blocks.
func (p *Peer) AddAppendEntriesTask() {
	p.enqueue(taskAppendEntries)
}

func (p *Peer) enqueue(task peerTask) {
	select {
	case p.taskCh <- task:
	case <-p.stopCh:
	default:
		// Queue full: the task is idempotent and a heartbeat re-issues it.
	}
}

func (p *Peer) run() {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.taskCh:
			switch task {
			case taskRequestVote:
				p.requestVote()
			case taskAppendEntries:
				p.appendEntries()
			}
		}
	}
}

// requestVote solicits this peer's vote for the current candidacy. An RPC
// failure is not retried; the next election tick reissues it.
func (p *Peer) requestVote() {
	p.ctx.commitMu.Lock()
	if p.ctx.role != RoleCandidate {
		p.ctx.commitMu.Unlock()
		return
	}
	term := p.ctx.currentTerm
	lastLogTerm, lastLogIndex := p.log.GetLastLogTermAndIndex()
	p.ctx.commitMu.Unlock()

	args := &RequestVoteArgs{
		Term:          term,
		CandidateIP:   p.opts.LocalIP,
		CandidatePort: p.opts.LocalPort,
		LastLogTerm:   lastLogTerm,
		LastLogIndex:  lastLogIndex,
	}
	data, err := p.pool.Send(p.addr, RPCRequestVote, args.Serialize())
	if err != nil {
		p.logger.Debug("request vote send failed", "term", term, "error", err)
		return
	}
	reply, err := DeserializeRequestVoteReply(data)
	if err != nil {
		p.logger.Warn("request vote reply corrupted", "term", term)
		return
	}

	p.ctx.commitMu.Lock()
	defer p.ctx.commitMu.Unlock()

	if reply.Term > p.ctx.currentTerm {
		p.ctx.BecomeFollower(reply.Term, "", 0)
		p.persistTermAndVote()
		return
	}
	if p.ctx.role != RoleCandidate || !reply.VoteGranted || reply.Term != p.ctx.currentTerm {
		return
	}

	p.ctx.voteQuorum++
	if p.ctx.voteQuorum < p.opts.Quorum() {
		return
	}

	p.logger.Info("won election", "term", p.ctx.currentTerm, "votes", p.ctx.voteQuorum)
	p.ctx.BecomeLeader()
	lastIndex := p.log.GetLastLogIndex()
	for _, peer := range p.peers {
		peer.nextIndex = lastIndex + 1
		peer.matchIndex = 0
	}
	for _, peer := range p.peers {
		peer.AddAppendEntriesTask()
	}
}

// appendEntries runs one replication round against this peer. An RPC
// failure leaves the counters unchanged so the next heartbeat re-attempts.
func (p *Peer) appendEntries() {
	p.ctx.commitMu.Lock()
	if p.ctx.role != RoleLeader {
		p.ctx.commitMu.Unlock()
		return
	}
	term := p.ctx.currentTerm
	lastLogIndex := p.log.GetLastLogIndex()
	if p.nextIndex > lastLogIndex+1 {
		p.nextIndex = lastLogIndex + 1
	}
	prevLogIndex := p.nextIndex - 1
	prevEntry, err := p.log.GetEntry(prevLogIndex)
	if err != nil {
		p.ctx.commitMu.Unlock()
		p.logger.Error("append entries: prev entry missing", "index", prevLogIndex, "error", err)
		return
	}
	entries, err := p.log.GetRange(p.nextIndex, lastLogIndex, maxEntriesPerRPC)
	if err != nil {
		p.ctx.commitMu.Unlock()
		p.logger.Error("append entries: range fetch failed", "from", p.nextIndex, "error", err)
		return
	}
	p.ctx.commitIndexMu.Lock()
	leaderCommit := p.ctx.commitIndex
	p.ctx.commitIndexMu.Unlock()
	p.ctx.commitMu.Unlock()

	args := &AppendEntriesArgs{
		Term:         term,
		LeaderIP:     p.opts.LocalIP,
		LeaderPort:   p.opts.LocalPort,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevEntry.Term,
		Entries:      entries,
		LeaderCommit: leaderCommit,
	}
	data, err := p.pool.Send(p.addr, RPCAppendEntries, args.Serialize())
	if err != nil {
		p.logger.Debug("append entries send failed", "term", term, "error", err)
		return
	}
	reply, err := DeserializeAppendEntriesReply(data)
	if err != nil {
		p.logger.Warn("append entries reply corrupted", "term", term)
		return
	}

	p.ctx.commitMu.Lock()
	defer p.ctx.commitMu.Unlock()

	if reply.Term > p.ctx.currentTerm {
		p.ctx.BecomeFollower(reply.Term, "", 0)
		p.persistTermAndVote()
		return
	}
	if p.ctx.role != RoleLeader {
		return
	}

	if !reply.Success {
		// Fast rollback: jump to just past the follower's last index when
		// that is behind us, otherwise step back one.
		next := p.nextIndex - 1
		if reply.LastLogIndex+1 < p.nextIndex {
			next = reply.LastLogIndex + 1
		}
		if next < 1 {
			next = 1
		}
		p.nextIndex = next
		p.AddAppendEntriesTask()
		return
	}

	p.matchIndex = prevLogIndex + uint64(len(entries))
	p.nextIndex = p.matchIndex + 1
	p.advanceLeaderCommit()
}

// advanceLeaderCommit recomputes the leader commit index: the largest N past
// the current commit index whose entry is from the current term and is
// matched by a majority (the leader counts as matching its own last index).
// Called with ctx.commitMu held.
func (p *Peer) advanceLeaderCommit() {
	lastLogIndex := p.log.GetLastLogIndex()

	p.ctx.commitIndexMu.Lock()
	commitIndex := p.ctx.commitIndex
	p.ctx.commitIndexMu.Unlock()

	for n := lastLogIndex; n > commitIndex; n-- {
		entry, err := p.log.GetEntry(n)
		if err != nil || entry.Term != p.ctx.currentTerm {
			continue
		}
		count := 1
		for _, peer := range p.peers {
			if peer.matchIndex >= n {
				count++
			}
		}
		if count < p.opts.Quorum() {
			continue
		}

		p.ctx.commitIndexMu.Lock()
		if n > p.ctx.commitIndex {
			p.ctx.commitIndex = n
			if err := p.meta.SetCommitIndex(n); err != nil {
				p.logger.Error("persist commit index failed", "index", n, "error", err)
			}
		}
		p.ctx.commitIndexMu.Unlock()

		p.apply.ScheduleApply()
		return
	}
}

// persistTermAndVote durably stores the current term and vote. Called with
// ctx.commitMu held.
func (p *Peer) persistTermAndVote() {
	if err := p.meta.SetCurrentTerm(p.ctx.currentTerm); err != nil {
		p.logger.Error("persist term failed", "error", err)
	}
	if err := p.meta.SetVotedForIP(p.ctx.votedForIP); err != nil {
		p.logger.Error("persist vote failed", "error", err)
	}
	if err := p.meta.SetVotedForPort(p.ctx.votedForPort); err != nil {
		p.logger.Error("persist vote failed", "error", err)
	}
}
