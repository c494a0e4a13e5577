// Package raft implements a replicated key-value store built on the Raft
// consensus algorithm.
//
// A fixed cluster of members maintains a linearizable log of write/delete
// operations against a durable key-value store. Reads replicate through the
// log as no-op entries; unreplicated best-effort "dirty" reads and writes are
// available for low-latency use.
//
// # Architecture
//
// Each node runs a small set of long-lived workers:
//
//   - Primary: the single owner of the election and heartbeat timers. It
//     turns a follower or candidate whose leader has gone stale into a
//     candidate, fans out vote requests, and
//     notifies peer replicators of heartbeats and new commands. Peers never
//     self-schedule.
//   - Peer (one per remote member): a FIFO single-consumer task queue whose
//     worker issues RequestVote and AppendEntries RPCs and maintains the
//     nextIndex/matchIndex replication counters.
//   - Apply: drains committed-but-unapplied entries into the key-value store
//     and advances lastApplied.
//   - The transport's accept loop dispatches inbound RPCs to the vote,
//     append-entries, and client command handlers.
//
// # Persistence
//
// Two ordered stores back a node: <path>/db holds applied key-value state;
// <path>/log holds log entries under big-endian index keys plus the durable
// Raft metadata (currentTerm, votedFor, commitIndex) under fixed keys. Meta
// writes are synced before any RPC reply that depends on them.
//
// # Locking
//
// The commit mutex guards role, term, leader, vote state, and all peer
// replication counters. The commit-index mutex guards commit index advance
// and its persist. The apply mutex guards lastApplied. Lock order is commit
// mutex, then commit-index mutex, then apply mutex; no mutex is held across
// RPC I/O except in the two inbound consensus handlers, which hold the
// commit mutex for their full duration.
package raft
