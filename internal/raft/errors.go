package raft

import "errors"

// Raft errors.
var (
	// ErrNoLeader is returned for client commands when no leader is known.
	ErrNoLeader = errors.New("raft: no leader node")

	// ErrNotFound is returned by Read and DirtyRead for a missing key.
	ErrNotFound = errors.New("raft: key not found")

	// ErrTimeout is returned when a command was appended but its apply was
	// not observed in time. The log entry remains; the command may commit
	// later.
	ErrTimeout = errors.New("raft: apply wait timeout")

	// ErrIO is returned when a local store write fails.
	ErrIO = errors.New("raft: store write failed")

	// ErrCorrupted is returned when a message or log entry fails to decode.
	ErrCorrupted = errors.New("raft: corrupted message")

	// ErrNodeStopped is returned when operating on a stopped node.
	ErrNodeStopped = errors.New("raft: node stopped")

	// ErrTransportClosed is returned when the transport is closed.
	ErrTransportClosed = errors.New("raft: transport closed")

	// ErrConnectFailed is returned when a peer cannot be reached.
	ErrConnectFailed = errors.New("raft: connection failed")

	// ErrRemote is returned when a remote node answered a redirected
	// command with an error status.
	ErrRemote = errors.New("raft: remote command failed")

	// ErrInvalidOptions is returned when node options are invalid.
	ErrInvalidOptions = errors.New("raft: invalid options")
)
