package raft

import (
	"math/rand"
	"time"

	"github.com/KilimcininKorOglu/raftkv/internal/logging"
)

// Primary is the single owner of the election and heartbeat timers. It is
// the only component that schedules work onto the peer replicators, which
// prevents timer storms: peers never self-schedule.
//
// Three task kinds drive it: the re-arming leader check, the re-arming
// heartbeat, and one-shot new-command notifications (which collapse on a
// capacity-1 channel).
type Primary struct {
	ctx    *Context
	meta   *MetaStore
	opts   *Options
	logger logging.Logger

	// peers is shared immutable-after-init with every Peer.
	peers map[string]*Peer

	newCommandCh chan struct{}
	stopCh       chan struct{}
	doneCh       chan struct{}

	rng *rand.Rand
}

// NewPrimary creates the primary scheduler.
func NewPrimary(ctx *Context, meta *MetaStore, opts *Options, logger logging.Logger) *Primary {
	return &Primary{
		ctx:          ctx,
		meta:         meta,
		opts:         opts,
		logger:       logger,
		newCommandCh: make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPeers hands the primary the replicator set. Must be called before
// Start.
func (p *Primary) SetPeers(peers map[string]*Peer) {
	p.peers = peers
}

// Start launches the timer loop.
func (p *Primary) Start() {
	go p.run()
}

// Stop terminates the timer loop.
func (p *Primary) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// NoticeNewCommand wakes the leader fan-out for a freshly appended command.
// Never blocks; redundant notices collapse.
func (p *Primary) NoticeNewCommand() {
	select {
	case p.newCommandCh <- struct{}{}:
	default:
	}
}

// checkLeaderTimeout randomizes the leader check period within
// [timeout, 2*timeout) so candidates rarely collide.
func (p *Primary) checkLeaderTimeout() time.Duration {
	return p.opts.ElectionTimeout + time.Duration(p.rng.Int63n(int64(p.opts.ElectionTimeout)))
}

func (p *Primary) run() {
	defer close(p.doneCh)

	checkLeader := time.NewTimer(p.checkLeaderTimeout())
	defer checkLeader.Stop()
	heartbeat := time.NewTimer(p.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-checkLeader.C:
			p.launchCheckLeader()
			checkLeader.Reset(p.checkLeaderTimeout())
		case <-heartbeat.C:
			p.launchHeartbeat()
			heartbeat.Reset(p.opts.Heartbeat)
		case <-p.newCommandCh:
			p.launchNewCommand()
		}
	}
}

// launchCheckLeader promotes a follower or candidate whose leader has gone
// stale. In single mode the node assumes leadership directly.
func (p *Primary) launchCheckLeader() {
	p.ctx.commitMu.Lock()
	defer p.ctx.commitMu.Unlock()

	if p.ctx.role != RoleFollower && p.ctx.role != RoleCandidate {
		return
	}

	if p.opts.SingleMode {
		p.ctx.BecomeLeader()
		return
	}
	if time.Since(p.ctx.lastOpTime) <= p.opts.ElectionTimeout {
		return
	}

	p.ctx.BecomeCandidate()
	p.logger.Info("election timeout, becoming candidate", "term", p.ctx.currentTerm)
	if err := p.meta.SetCurrentTerm(p.ctx.currentTerm); err != nil {
		p.logger.Error("persist term failed", "error", err)
	}
	if err := p.meta.SetVotedForIP(p.ctx.votedForIP); err != nil {
		p.logger.Error("persist vote failed", "error", err)
	}
	if err := p.meta.SetVotedForPort(p.ctx.votedForPort); err != nil {
		p.logger.Error("persist vote failed", "error", err)
	}

	if p.ctx.voteQuorum >= p.opts.Quorum() {
		// Quorum of one: no votes to gather.
		p.ctx.BecomeLeader()
		return
	}
	for _, peer := range p.peers {
		peer.AddRequestVoteTask()
	}
}

func (p *Primary) launchHeartbeat() {
	p.ctx.commitMu.Lock()
	defer p.ctx.commitMu.Unlock()

	if p.ctx.role != RoleLeader {
		return
	}
	for _, peer := range p.peers {
		peer.AddAppendEntriesTask()
	}
}

func (p *Primary) launchNewCommand() {
	p.ctx.commitMu.Lock()
	defer p.ctx.commitMu.Unlock()

	if p.ctx.role != RoleLeader {
		p.logger.Debug("new command notice while not leader")
		return
	}
	for _, peer := range p.peers {
		peer.AddAppendEntriesTask()
	}
}
