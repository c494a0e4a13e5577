package raft

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/KilimcininKorOglu/raftkv/internal/logging"
	"github.com/KilimcininKorOglu/raftkv/internal/store"
)

// Node is a member of the replicated key-value store. It orchestrates
// startup and shutdown, routes client commands (execute when leader,
// redirect otherwise), and handles inbound consensus RPCs.
type Node struct {
	opts   *Options
	logger logging.Logger

	db    *store.Store // applied key-value state
	logDB *store.Store // log entries + Raft metadata

	log     *LogStore
	meta    *MetaStore
	ctx     *Context
	apply   *Apply
	primary *Primary
	peers   map[string]*Peer

	// pool serves both directions: Listen for inbound RPCs, Send for
	// leader redirect, dirty fan-out, status fan-out, and peer traffic.
	pool Transport

	running int32
}

// Open creates a node with a TCP transport and starts it.
func Open(opts *Options, logger logging.Logger) (*Node, error) {
	n, err := NewNode(opts, NewTCPTransport(opts.LocalAddr()), logger)
	if err != nil {
		return nil, err
	}
	if err := n.Start(); err != nil {
		n.closeStores()
		return nil, err
	}
	return n, nil
}

// NewNode creates a node over an existing transport without starting it.
// Failure to open either store is fatal to the caller.
func NewNode(opts *Options, transport Transport, logger logging.Logger) (*Node, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, err
	}

	db, err := store.Open(filepath.Join(opts.Path, "db"))
	if err != nil {
		return nil, err
	}
	logDB, err := store.Open(filepath.Join(opts.Path, "log"))
	if err != nil {
		db.Close()
		return nil, err
	}
	logStore, err := NewLogStore(logDB)
	if err != nil {
		db.Close()
		logDB.Close()
		return nil, err
	}

	n := &Node{
		opts:   opts,
		logger: logger,
		db:     db,
		logDB:  logDB,
		log:    logStore,
		meta:   NewMetaStore(logDB),
		pool:   transport,
	}

	n.ctx = NewContext(opts)
	n.ctx.RecoverInit(n.meta)

	n.apply = NewApply(n.ctx, n.db, n.log, logger)
	n.primary = NewPrimary(n.ctx, n.meta, opts, logger)

	n.peers = make(map[string]*Peer)
	for _, member := range opts.Members {
		if opts.IsSelf(member) {
			continue
		}
		n.peers[member] = NewPeer(member, n.ctx, n.log, n.meta, n.apply, n.pool, opts, logger)
	}
	for _, peer := range n.peers {
		peer.SetPeers(n.peers)
	}
	n.primary.SetPeers(n.peers)

	return n, nil
}

// Start begins serving: inbound RPC dispatch, then apply, peers, and the
// primary timers.
func (n *Node) Start() error {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return nil
	}
	if err := n.pool.Listen(n.handleRPC); err != nil {
		atomic.StoreInt32(&n.running, 0)
		return err
	}
	n.apply.Start()
	for _, peer := range n.peers {
		peer.Start()
	}
	n.primary.Start()
	n.logger.Info("node started",
		"listen", n.opts.LocalAddr(),
		"members", len(n.opts.Members),
		"term", n.ctx.currentTerm)
	return nil
}

// Stop shuts the node down: primary first, then peers, apply, transport,
// and finally the stores. Durability is per store write; there is no
// further flush.
func (n *Node) Stop() {
	if !atomic.CompareAndSwapInt32(&n.running, 1, 0) {
		return
	}
	n.primary.Stop()
	for _, peer := range n.peers {
		peer.Stop()
	}
	n.apply.Stop()
	n.pool.Close()
	n.closeStores()
	n.logger.Info("node stopped", "listen", n.opts.LocalAddr())
}

func (n *Node) closeStores() {
	n.logDB.Close()
	n.db.Close()
}

// IsLeader reports whether this node currently leads.
func (n *Node) IsLeader() bool {
	n.ctx.commitMu.Lock()
	defer n.ctx.commitMu.Unlock()
	return n.ctx.role == RoleLeader
}

// HasLeader reports whether a leader is known.
func (n *Node) HasLeader() bool {
	n.ctx.commitMu.Lock()
	defer n.ctx.commitMu.Unlock()
	return n.ctx.HasLeader()
}

// GetLeader returns the known leader's address, or "" when unknown.
func (n *Node) GetLeader() string {
	n.ctx.commitMu.Lock()
	defer n.ctx.commitMu.Unlock()
	if !n.ctx.HasLeader() {
		return ""
	}
	ip, port := n.ctx.LeaderNode()
	return joinAddr(ip, port)
}

// Write replicates a put of key/value through the log and waits for it to
// apply.
func (n *Node) Write(key, value []byte) error {
	reply, err := n.doCommand(RPCWrite, &ClientRequest{Key: key, Value: value})
	if err != nil {
		return err
	}
	if reply.Code != StatusOk {
		return ErrRemote
	}
	return nil
}

// Delete replicates a delete of key through the log and waits for it to
// apply.
func (n *Node) Delete(key []byte) error {
	reply, err := n.doCommand(RPCDelete, &ClientRequest{Key: key})
	if err != nil {
		return err
	}
	if reply.Code != StatusOk {
		return ErrRemote
	}
	return nil
}

// Read replicates a read barrier through the log, then returns the key's
// value from the applied state.
func (n *Node) Read(key []byte) ([]byte, error) {
	reply, err := n.doCommand(RPCRead, &ClientRequest{Key: key})
	if err != nil {
		return nil, err
	}
	switch reply.Code {
	case StatusOk:
		return reply.Value, nil
	case StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, ErrRemote
	}
}

// DirtyWrite puts key/value into the local store immediately and forwards
// it best-effort to every other member. Success is reported even when some
// members are unreachable.
func (n *Node) DirtyWrite(key, value []byte) error {
	if err := n.db.Put(key, value); err != nil {
		n.logger.Error("dirty write failed", "error", err)
		return ErrIO
	}

	req := &ClientRequest{Key: key, Value: value}
	for _, member := range n.opts.Members {
		if n.opts.IsSelf(member) {
			continue
		}
		if _, err := n.pool.Send(member, RPCDirtyWrite, req.Serialize()); err != nil {
			n.logger.Debug("dirty write fan-out failed", "member", member, "error", err)
		}
	}
	return nil
}

// DirtyRead returns the key's value from the local store, bypassing the
// log.
func (n *Node) DirtyRead(key []byte) ([]byte, error) {
	value, err := n.db.Get(key)
	if err == store.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, ErrIO
	}
	return value, nil
}

// Status returns this node's consensus status.
func (n *Node) Status() *ServerStatus {
	n.ctx.commitMu.Lock()
	defer n.ctx.commitMu.Unlock()
	return n.localStatusLocked()
}

// localStatusLocked assembles the status snapshot. Caller holds
// ctx.commitMu.
func (n *Node) localStatusLocked() *ServerStatus {
	lastLogTerm, lastLogIndex := n.log.GetLastLogTermAndIndex()

	n.ctx.commitIndexMu.Lock()
	commitIndex := n.ctx.commitIndex
	n.ctx.commitIndexMu.Unlock()

	n.ctx.applyMu.Lock()
	lastApplied := n.ctx.lastApplied
	n.ctx.applyMu.Unlock()

	leaderIP, leaderPort := n.ctx.LeaderNode()
	votedIP, votedPort := n.ctx.VotedForNode()

	return &ServerStatus{
		Role:         n.ctx.role.String(),
		Term:         n.ctx.currentTerm,
		CommitIndex:  commitIndex,
		LeaderIP:     leaderIP,
		LeaderPort:   leaderPort,
		VotedForIP:   votedIP,
		VotedForPort: votedPort,
		LastLogTerm:  lastLogTerm,
		LastLogIndex: lastLogIndex,
		LastApplied:  lastApplied,
	}
}

// ClusterStatus returns a human-readable status table for this node and,
// best-effort, every other member.
func (n *Node) ClusterStatus() string {
	var b strings.Builder
	b.WriteString("      Node           | Role      |   Term | CommitIdx | Leader              | VotedFor            | LastLogTerm | LastLogIdx | LastApplied\n")

	writeRow := func(addr string, s *ServerStatus) {
		leader := "-"
		if s.LeaderIP != "" {
			leader = joinAddr(s.LeaderIP, s.LeaderPort)
		}
		voted := "-"
		if s.VotedForIP != "" {
			voted = joinAddr(s.VotedForIP, s.VotedForPort)
		}
		fmt.Fprintf(&b, "%-21s %-11s %6d %11d %-21s %-21s %11d %12d %11d\n",
			addr, s.Role, s.Term, s.CommitIndex, leader, voted,
			s.LastLogTerm, s.LastLogIndex, s.LastApplied)
	}

	writeRow(n.opts.LocalAddr(), n.Status())

	for _, member := range n.opts.Members {
		if n.opts.IsSelf(member) {
			continue
		}
		data, err := n.pool.Send(member, RPCServerStatus, nil)
		if err != nil {
			fmt.Fprintf(&b, "%-21s unreachable\n", member)
			continue
		}
		status, err := DeserializeServerStatus(data)
		if err != nil {
			fmt.Fprintf(&b, "%-21s corrupted reply\n", member)
			continue
		}
		writeRow(member, status)
	}
	return b.String()
}

// doCommand executes a client command on the leader, redirecting over the
// pool when this node is not it.
func (n *Node) doCommand(msgType uint8, req *ClientRequest) (*ClientReply, error) {
	if atomic.LoadInt32(&n.running) == 0 {
		return nil, ErrNodeStopped
	}

	n.ctx.commitMu.Lock()
	hasLeader := n.ctx.HasLeader()
	leaderIP, leaderPort := n.ctx.LeaderNode()
	n.ctx.commitMu.Unlock()

	if !hasLeader {
		return nil, ErrNoLeader
	}
	if leaderIP == n.opts.LocalIP && leaderPort == n.opts.LocalPort {
		return n.executeCommand(msgType, req)
	}

	data, err := n.pool.Send(joinAddr(leaderIP, leaderPort), msgType, req.Serialize())
	if err != nil {
		return nil, err
	}
	return DeserializeClientReply(data)
}

// executeCommand runs a command on the leader: append the entry, notify the
// primary, wait for the apply barrier, then complete the command. On
// timeout the entry remains in the log; the command may still commit.
func (n *Node) executeCommand(msgType uint8, req *ClientRequest) (*ClientReply, error) {
	logger := n.logger.WithRequestID(logging.GenerateRequestID())

	n.ctx.commitMu.Lock()
	if n.ctx.role != RoleLeader {
		n.ctx.commitMu.Unlock()
		return nil, ErrNoLeader
	}
	entry := &LogEntry{
		Term:  n.ctx.currentTerm,
		Op:    opForMsg(msgType),
		Key:   req.Key,
		Value: req.Value,
	}
	index, err := n.log.Append([]*LogEntry{entry})
	if err != nil || index == 0 {
		n.ctx.commitMu.Unlock()
		logger.Error("append failed", "error", err)
		return nil, ErrIO
	}
	if len(n.peers) == 0 {
		// Single-member cluster: the entry is committed by definition.
		n.advanceCommitLocked(index)
	}
	n.ctx.commitMu.Unlock()

	logger.Debug("command appended", "index", index, "op", entry.Op)
	n.primary.NoticeNewCommand()

	if !n.apply.WaitApplied(index) {
		logger.Warn("apply wait timed out", "index", index)
		return nil, ErrTimeout
	}

	switch msgType {
	case RPCWrite, RPCDelete:
		return &ClientReply{Code: StatusOk}, nil
	case RPCRead:
		value, err := n.db.Get(req.Key)
		if err == store.ErrNotFound {
			return &ClientReply{Code: StatusNotFound}, nil
		}
		if err != nil {
			return &ClientReply{Code: StatusError}, nil
		}
		return &ClientReply{Code: StatusOk, Value: value}, nil
	default:
		return &ClientReply{Code: StatusError}, nil
	}
}

// advanceCommitLocked moves the commit index forward to index and wakes the
// apply worker. Caller holds ctx.commitMu.
func (n *Node) advanceCommitLocked(index uint64) {
	n.ctx.commitIndexMu.Lock()
	if index > n.ctx.commitIndex {
		n.ctx.commitIndex = index
		if err := n.meta.SetCommitIndex(index); err != nil {
			n.logger.Error("persist commit index failed", "index", index, "error", err)
		}
	}
	n.ctx.commitIndexMu.Unlock()
	n.apply.ScheduleApply()
}

func opForMsg(msgType uint8) uint8 {
	switch msgType {
	case RPCWrite, RPCDirtyWrite:
		return OpWrite
	case RPCDelete:
		return OpDelete
	default:
		return OpRead
	}
}

// handleRPC dispatches one inbound message. It runs on the transport's
// connection-handler goroutines.
func (n *Node) handleRPC(msgType uint8, data []byte) []byte {
	switch msgType {
	case RPCRequestVote:
		args, err := DeserializeRequestVoteArgs(data)
		if err != nil {
			return (&RequestVoteReply{Term: 0}).Serialize()
		}
		return n.ReplyRequestVote(args).Serialize()
	case RPCAppendEntries:
		args, err := DeserializeAppendEntriesArgs(data)
		if err != nil {
			return (&AppendEntriesReply{}).Serialize()
		}
		return n.ReplyAppendEntries(args).Serialize()
	case RPCWrite, RPCRead, RPCDelete:
		return n.handleClientCommand(msgType, data)
	case RPCDirtyWrite:
		return n.handleDirtyWrite(data)
	case RPCDirtyRead:
		return n.handleDirtyRead(data)
	case RPCServerStatus:
		return n.Status().Serialize()
	default:
		n.logger.Warn("unknown rpc type", "type", msgType)
		return nil
	}
}

func (n *Node) handleClientCommand(msgType uint8, data []byte) []byte {
	req, err := DeserializeClientRequest(data)
	if err != nil {
		return (&ClientReply{Code: StatusError}).Serialize()
	}
	reply, err := n.doCommand(msgType, req)
	if err != nil {
		return (&ClientReply{Code: StatusError}).Serialize()
	}
	return reply.Serialize()
}

// handleDirtyWrite applies a dirty write locally. It never forwards, so
// fan-out cannot loop.
func (n *Node) handleDirtyWrite(data []byte) []byte {
	req, err := DeserializeClientRequest(data)
	if err != nil {
		return (&ClientReply{Code: StatusError}).Serialize()
	}
	if err := n.db.Put(req.Key, req.Value); err != nil {
		return (&ClientReply{Code: StatusError}).Serialize()
	}
	return (&ClientReply{Code: StatusOk}).Serialize()
}

func (n *Node) handleDirtyRead(data []byte) []byte {
	req, err := DeserializeClientRequest(data)
	if err != nil {
		return (&ClientReply{Code: StatusError}).Serialize()
	}
	value, err := n.db.Get(req.Key)
	if err == store.ErrNotFound {
		return (&ClientReply{Code: StatusNotFound}).Serialize()
	}
	if err != nil {
		return (&ClientReply{Code: StatusError}).Serialize()
	}
	return (&ClientReply{Code: StatusOk, Value: value}).Serialize()
}

// ReplyRequestVote handles an inbound vote solicitation. It holds the
// commit mutex for its full duration.
func (n *Node) ReplyRequestVote(args *RequestVoteArgs) *RequestVoteReply {
	n.ctx.commitMu.Lock()
	defer n.ctx.commitMu.Unlock()

	reply := &RequestVoteReply{Term: n.ctx.currentTerm}
	candidate := joinAddr(args.CandidateIP, args.CandidatePort)

	if args.Term < n.ctx.currentTerm {
		n.logger.Debug("vote denied: stale term",
			"candidate", candidate, "term", args.Term, "currentTerm", n.ctx.currentTerm)
		return reply
	}

	myLastLogTerm, myLastLogIndex := n.log.GetLastLogTermAndIndex()
	upToDate := args.LastLogTerm > myLastLogTerm ||
		(args.LastLogTerm == myLastLogTerm && args.LastLogIndex >= myLastLogIndex)
	if !upToDate {
		n.logger.Debug("vote denied: log behind",
			"candidate", candidate,
			"candidateLog", args.LastLogIndex, "myLog", myLastLogIndex)
		return reply
	}

	if granted, ok := n.ctx.voteLedger[args.Term]; ok && granted != candidate {
		n.logger.Debug("vote denied: already voted this term",
			"candidate", candidate, "votedFor", granted, "term", args.Term)
		return reply
	}

	n.ctx.voteLedger[args.Term] = candidate
	n.ctx.BecomeFollower(args.Term, "", 0)
	n.ctx.GrantVote(args.Term, args.CandidateIP, args.CandidatePort)
	n.persistTermAndVoteLocked()
	n.ctx.TouchLeaderActivity()

	n.logger.Info("vote granted", "candidate", candidate, "term", args.Term)
	reply.Term = n.ctx.currentTerm
	reply.VoteGranted = true
	return reply
}

// ReplyAppendEntries handles an inbound replication request. It holds the
// commit mutex for its full duration.
func (n *Node) ReplyAppendEntries(args *AppendEntriesArgs) *AppendEntriesReply {
	n.ctx.commitMu.Lock()
	defer n.ctx.commitMu.Unlock()

	reply := &AppendEntriesReply{
		Term:         n.ctx.currentTerm,
		LastLogIndex: n.log.GetLastLogIndex(),
	}

	if args.Term < n.ctx.currentTerm {
		return reply
	}
	if args.Term > n.ctx.currentTerm {
		n.ctx.BecomeFollower(args.Term, args.LeaderIP, args.LeaderPort)
		n.persistTermAndVoteLocked()
		reply.Term = args.Term
	} else if n.ctx.role == RoleCandidate {
		// A live leader exists in our term.
		n.ctx.role = RoleFollower
	}
	n.ctx.leaderIP = args.LeaderIP
	n.ctx.leaderPort = args.LeaderPort
	n.ctx.TouchLeaderActivity()

	lastLogIndex := n.log.GetLastLogIndex()
	if args.PrevLogIndex > lastLogIndex {
		// Missing entries: report our tail for fast rollback.
		reply.LastLogIndex = lastLogIndex
		return reply
	}

	prevEntry, err := n.log.GetEntry(args.PrevLogIndex)
	if err != nil {
		n.logger.Warn("append entries: prev entry unreadable",
			"index", args.PrevLogIndex, "error", err)
		return reply
	}
	if prevEntry.Term != args.PrevLogTerm {
		n.logger.Warn("append entries: prev term conflict, truncating",
			"index", args.PrevLogIndex,
			"localTerm", prevEntry.Term, "leaderTerm", args.PrevLogTerm)
		if err := n.log.TruncateSuffix(args.PrevLogIndex); err != nil {
			n.logger.Error("truncate failed", "from", args.PrevLogIndex, "error", err)
		}
		reply.LastLogIndex = n.log.GetLastLogIndex()
		return reply
	}

	// Skip entries already present; truncate at the first conflict and
	// append the remainder.
	for i, entry := range args.Entries {
		index := args.PrevLogIndex + uint64(i) + 1
		if index <= lastLogIndex {
			existing, err := n.log.GetEntry(index)
			if err == nil && existing.Term == entry.Term {
				continue
			}
			if err := n.log.TruncateSuffix(index); err != nil {
				n.logger.Error("truncate failed", "from", index, "error", err)
				return reply
			}
		}
		if _, err := n.log.Append(args.Entries[i:]); err != nil {
			n.logger.Error("append failed", "from", index, "error", err)
			reply.LastLogIndex = n.log.GetLastLogIndex()
			return reply
		}
		break
	}

	newLastIndex := n.log.GetLastLogIndex()

	n.ctx.commitIndexMu.Lock()
	if args.LeaderCommit > n.ctx.commitIndex {
		commit := args.LeaderCommit
		if newLastIndex < commit {
			commit = newLastIndex
		}
		n.ctx.commitIndex = commit
		if err := n.meta.SetCommitIndex(commit); err != nil {
			n.logger.Error("persist commit index failed", "index", commit, "error", err)
		}
	}
	n.ctx.commitIndexMu.Unlock()
	n.apply.ScheduleApply()

	reply.Term = n.ctx.currentTerm
	reply.Success = true
	reply.LastLogIndex = newLastIndex
	return reply
}

// persistTermAndVoteLocked durably stores the term and vote. Caller holds
// ctx.commitMu.
func (n *Node) persistTermAndVoteLocked() {
	if err := n.meta.SetCurrentTerm(n.ctx.currentTerm); err != nil {
		n.logger.Error("persist term failed", "error", err)
	}
	if err := n.meta.SetVotedForIP(n.ctx.votedForIP); err != nil {
		n.logger.Error("persist vote failed", "error", err)
	}
	if err := n.meta.SetVotedForPort(n.ctx.votedForPort); err != nil {
		n.logger.Error("persist vote failed", "error", err)
	}
}
