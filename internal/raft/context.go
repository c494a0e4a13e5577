package raft

import (
	"sync"
	"time"
)

// Role is the node's position in the role state machine.
type Role uint8

// Node roles.
const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

// String returns the string representation of a role.
func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// Context holds the in-memory Raft state of a node, plus the three mutexes
// that order all state mutation. Every mutator must be called with commitMu
// held; Context never locks for the caller.
//
// Lock order: commitMu, then commitIndexMu, then applyMu.
type Context struct {
	opts *Options

	role        Role
	currentTerm uint64

	leaderIP   string
	leaderPort int

	votedForIP   string
	votedForPort int
	voteQuorum   int

	commitIndex uint64
	lastApplied uint64

	// voteLedger maps term -> granted candidate address, enforcing at most
	// one vote per term (self-votes included). The current term's entry is
	// durable via the meta store and restored on recovery.
	voteLedger map[uint64]string

	// lastOpTime is the last time a valid leader or candidate was heard
	// from; the Primary compares it against the election timeout.
	lastOpTime time.Time

	commitMu      sync.Mutex
	commitIndexMu sync.Mutex
	applyMu       sync.Mutex
}

// NewContext creates a Context for a node with the given options.
func NewContext(opts *Options) *Context {
	return &Context{
		opts:       opts,
		role:       RoleFollower,
		voteLedger: make(map[uint64]string),
	}
}

// RecoverInit loads the durable metadata and resets the node to follower.
// The persisted vote re-seeds the ledger for the recovered term.
func (c *Context) RecoverInit(meta *MetaStore) {
	c.currentTerm = meta.GetCurrentTerm()
	c.votedForIP = meta.GetVotedForIP()
	c.votedForPort = meta.GetVotedForPort()
	c.commitIndex = meta.GetCommitIndex()
	if c.votedForIP != "" {
		c.voteLedger[c.currentTerm] = joinAddr(c.votedForIP, c.votedForPort)
	}
	c.role = RoleFollower
	c.lastOpTime = time.Now()
}

// HasLeader reports whether a leader address is known.
func (c *Context) HasLeader() bool {
	return c.leaderIP != "" && c.leaderPort != 0
}

// LeaderNode returns the known leader's address.
func (c *Context) LeaderNode() (string, int) {
	return c.leaderIP, c.leaderPort
}

// VotedForNode returns the address this node voted for in the current term.
func (c *Context) VotedForNode() (string, int) {
	return c.votedForIP, c.votedForPort
}

// BecomeFollower moves to follower in newTerm. The vote is cleared; the
// leader is recorded when known (pass "" and 0 otherwise).
func (c *Context) BecomeFollower(newTerm uint64, leaderIP string, leaderPort int) {
	c.currentTerm = newTerm
	c.votedForIP = ""
	c.votedForPort = 0
	c.leaderIP = leaderIP
	c.leaderPort = leaderPort
	c.role = RoleFollower
}

// BecomeCandidate starts an election: bump the term, vote for self, forget
// the leader.
func (c *Context) BecomeCandidate() {
	c.currentTerm++
	c.role = RoleCandidate
	c.leaderIP = ""
	c.leaderPort = 0
	c.votedForIP = c.opts.LocalIP
	c.votedForPort = c.opts.LocalPort
	c.voteLedger[c.currentTerm] = c.opts.LocalAddr()
	c.voteQuorum = 1
}

// BecomeLeader moves to leader in the current term. The caller resets every
// peer's replication counters and primes heartbeats.
func (c *Context) BecomeLeader() {
	c.role = RoleLeader
	c.leaderIP = c.opts.LocalIP
	c.leaderPort = c.opts.LocalPort
}

// GrantVote records a vote for the node at (ip, port) in term.
func (c *Context) GrantVote(term uint64, ip string, port int) {
	c.votedForIP = ip
	c.votedForPort = port
	c.currentTerm = term
}

// TouchLeaderActivity marks the leader (or a granted candidate) as live,
// deferring the next election.
func (c *Context) TouchLeaderActivity() {
	c.lastOpTime = time.Now()
}
