package raft

import (
	"bytes"
	"encoding/binary"
	"io"
)

// RPC message types. Client commands and consensus traffic share one port.
const (
	RPCWrite uint8 = iota
	RPCRead
	RPCDelete
	RPCDirtyWrite
	RPCDirtyRead
	RPCServerStatus
	RPCRequestVote
	RPCAppendEntries
)

// Client command status codes.
const (
	StatusOk uint8 = iota
	StatusNotFound
	StatusError
)

// ClientRequest carries a key-value command.
type ClientRequest struct {
	Key   []byte
	Value []byte // empty for Read, Delete, DirtyRead
}

// Serialize encodes a ClientRequest to bytes.
func (r *ClientRequest) Serialize() []byte {
	var buf bytes.Buffer
	writeBytes(&buf, r.Key)
	writeBytes(&buf, r.Value)
	return buf.Bytes()
}

// DeserializeClientRequest decodes a ClientRequest from bytes.
func DeserializeClientRequest(data []byte) (*ClientRequest, error) {
	buf := bytes.NewReader(data)
	key, err := readBytes(buf)
	if err != nil {
		return nil, ErrCorrupted
	}
	value, err := readBytes(buf)
	if err != nil {
		return nil, ErrCorrupted
	}
	return &ClientRequest{Key: key, Value: value}, nil
}

// ClientReply carries the status of a key-value command, and the value for
// reads.
type ClientReply struct {
	Code  uint8
	Value []byte
}

// Serialize encodes a ClientReply to bytes.
func (r *ClientReply) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(r.Code)
	writeBytes(&buf, r.Value)
	return buf.Bytes()
}

// DeserializeClientReply decodes a ClientReply from bytes.
func DeserializeClientReply(data []byte) (*ClientReply, error) {
	if len(data) < 1 {
		return nil, ErrCorrupted
	}
	buf := bytes.NewReader(data[1:])
	value, err := readBytes(buf)
	if err != nil {
		return nil, ErrCorrupted
	}
	return &ClientReply{Code: data[0], Value: value}, nil
}

// RequestVoteArgs is sent by candidates to gather votes.
type RequestVoteArgs struct {
	Term          uint64 // candidate's term
	CandidateIP   string // candidate requesting the vote
	CandidatePort int
	LastLogTerm   uint64 // term of candidate's last log entry
	LastLogIndex  uint64 // index of candidate's last log entry
}

// Serialize encodes RequestVoteArgs to bytes.
func (a *RequestVoteArgs) Serialize() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, a.Term)
	writeString(&buf, a.CandidateIP)
	binary.Write(&buf, binary.LittleEndian, uint32(a.CandidatePort))
	binary.Write(&buf, binary.LittleEndian, a.LastLogTerm)
	binary.Write(&buf, binary.LittleEndian, a.LastLogIndex)
	return buf.Bytes()
}

// DeserializeRequestVoteArgs decodes RequestVoteArgs from bytes.
func DeserializeRequestVoteArgs(data []byte) (*RequestVoteArgs, error) {
	buf := bytes.NewReader(data)
	a := &RequestVoteArgs{}

	if err := binary.Read(buf, binary.LittleEndian, &a.Term); err != nil {
		return nil, ErrCorrupted
	}
	ip, err := readString(buf)
	if err != nil {
		return nil, ErrCorrupted
	}
	a.CandidateIP = ip
	var port uint32
	if err := binary.Read(buf, binary.LittleEndian, &port); err != nil {
		return nil, ErrCorrupted
	}
	a.CandidatePort = int(port)
	if err := binary.Read(buf, binary.LittleEndian, &a.LastLogTerm); err != nil {
		return nil, ErrCorrupted
	}
	if err := binary.Read(buf, binary.LittleEndian, &a.LastLogIndex); err != nil {
		return nil, ErrCorrupted
	}
	return a, nil
}

// RequestVoteReply is the response to RequestVote.
type RequestVoteReply struct {
	Term        uint64 // current term, for the candidate to update itself
	VoteGranted bool
}

// Serialize encodes RequestVoteReply to bytes.
func (r *RequestVoteReply) Serialize() []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], r.Term)
	if r.VoteGranted {
		buf[8] = 1
	}
	return buf
}

// DeserializeRequestVoteReply decodes RequestVoteReply from bytes.
func DeserializeRequestVoteReply(data []byte) (*RequestVoteReply, error) {
	if len(data) < 9 {
		return nil, ErrCorrupted
	}
	return &RequestVoteReply{
		Term:        binary.LittleEndian.Uint64(data[0:8]),
		VoteGranted: data[8] == 1,
	}, nil
}

// AppendEntriesArgs is sent by the leader to replicate log entries. Empty
// Entries acts as a pure heartbeat.
type AppendEntriesArgs struct {
	Term         uint64
	LeaderIP     string
	LeaderPort   int
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*LogEntry
	LeaderCommit uint64
}

// Serialize encodes AppendEntriesArgs to bytes.
func (a *AppendEntriesArgs) Serialize() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, a.Term)
	writeString(&buf, a.LeaderIP)
	binary.Write(&buf, binary.LittleEndian, uint32(a.LeaderPort))
	binary.Write(&buf, binary.LittleEndian, a.PrevLogIndex)
	binary.Write(&buf, binary.LittleEndian, a.PrevLogTerm)
	binary.Write(&buf, binary.LittleEndian, a.LeaderCommit)
	binary.Write(&buf, binary.LittleEndian, uint32(len(a.Entries)))
	for _, e := range a.Entries {
		writeBytes(&buf, e.Serialize())
	}
	return buf.Bytes()
}

// DeserializeAppendEntriesArgs decodes AppendEntriesArgs from bytes.
func DeserializeAppendEntriesArgs(data []byte) (*AppendEntriesArgs, error) {
	buf := bytes.NewReader(data)
	a := &AppendEntriesArgs{}

	if err := binary.Read(buf, binary.LittleEndian, &a.Term); err != nil {
		return nil, ErrCorrupted
	}
	ip, err := readString(buf)
	if err != nil {
		return nil, ErrCorrupted
	}
	a.LeaderIP = ip
	var port uint32
	if err := binary.Read(buf, binary.LittleEndian, &port); err != nil {
		return nil, ErrCorrupted
	}
	a.LeaderPort = int(port)
	if err := binary.Read(buf, binary.LittleEndian, &a.PrevLogIndex); err != nil {
		return nil, ErrCorrupted
	}
	if err := binary.Read(buf, binary.LittleEndian, &a.PrevLogTerm); err != nil {
		return nil, ErrCorrupted
	}
	if err := binary.Read(buf, binary.LittleEndian, &a.LeaderCommit); err != nil {
		return nil, ErrCorrupted
	}
	var count uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, ErrCorrupted
	}
	a.Entries = make([]*LogEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, err := readBytes(buf)
		if err != nil {
			return nil, ErrCorrupted
		}
		e, err := DeserializeLogEntry(raw)
		if err != nil {
			return nil, err
		}
		a.Entries = append(a.Entries, e)
	}
	return a, nil
}

// AppendEntriesReply is the response to AppendEntries. LastLogIndex carries
// the follower's last log index for fast nextIndex rollback.
type AppendEntriesReply struct {
	Term         uint64
	Success      bool
	LastLogIndex uint64
}

// Serialize encodes AppendEntriesReply to bytes.
func (r *AppendEntriesReply) Serialize() []byte {
	buf := make([]byte, 17)
	binary.LittleEndian.PutUint64(buf[0:8], r.Term)
	if r.Success {
		buf[8] = 1
	}
	binary.LittleEndian.PutUint64(buf[9:17], r.LastLogIndex)
	return buf
}

// DeserializeAppendEntriesReply decodes AppendEntriesReply from bytes.
func DeserializeAppendEntriesReply(data []byte) (*AppendEntriesReply, error) {
	if len(data) < 17 {
		return nil, ErrCorrupted
	}
	return &AppendEntriesReply{
		Term:         binary.LittleEndian.Uint64(data[0:8]),
		Success:      data[8] == 1,
		LastLogIndex: binary.LittleEndian.Uint64(data[9:17]),
	}, nil
}

// ServerStatus is the reply to a status query.
type ServerStatus struct {
	Role         string
	Term         uint64
	CommitIndex  uint64
	LeaderIP     string
	LeaderPort   int
	VotedForIP   string
	VotedForPort int
	LastLogTerm  uint64
	LastLogIndex uint64
	LastApplied  uint64
}

// Serialize encodes ServerStatus to bytes.
func (s *ServerStatus) Serialize() []byte {
	var buf bytes.Buffer
	writeString(&buf, s.Role)
	binary.Write(&buf, binary.LittleEndian, s.Term)
	binary.Write(&buf, binary.LittleEndian, s.CommitIndex)
	writeString(&buf, s.LeaderIP)
	binary.Write(&buf, binary.LittleEndian, uint32(s.LeaderPort))
	writeString(&buf, s.VotedForIP)
	binary.Write(&buf, binary.LittleEndian, uint32(s.VotedForPort))
	binary.Write(&buf, binary.LittleEndian, s.LastLogTerm)
	binary.Write(&buf, binary.LittleEndian, s.LastLogIndex)
	binary.Write(&buf, binary.LittleEndian, s.LastApplied)
	return buf.Bytes()
}

// DeserializeServerStatus decodes ServerStatus from bytes.
func DeserializeServerStatus(data []byte) (*ServerStatus, error) {
	buf := bytes.NewReader(data)
	s := &ServerStatus{}

	role, err := readString(buf)
	if err != nil {
		return nil, ErrCorrupted
	}
	s.Role = role
	if err := binary.Read(buf, binary.LittleEndian, &s.Term); err != nil {
		return nil, ErrCorrupted
	}
	if err := binary.Read(buf, binary.LittleEndian, &s.CommitIndex); err != nil {
		return nil, ErrCorrupted
	}
	if s.LeaderIP, err = readString(buf); err != nil {
		return nil, ErrCorrupted
	}
	var port uint32
	if err := binary.Read(buf, binary.LittleEndian, &port); err != nil {
		return nil, ErrCorrupted
	}
	s.LeaderPort = int(port)
	if s.VotedForIP, err = readString(buf); err != nil {
		return nil, ErrCorrupted
	}
	if err := binary.Read(buf, binary.LittleEndian, &port); err != nil {
		return nil, ErrCorrupted
	}
	s.VotedForPort = int(port)
	if err := binary.Read(buf, binary.LittleEndian, &s.LastLogTerm); err != nil {
		return nil, ErrCorrupted
	}
	if err := binary.Read(buf, binary.LittleEndian, &s.LastLogIndex); err != nil {
		return nil, ErrCorrupted
	}
	if err := binary.Read(buf, binary.LittleEndian, &s.LastApplied); err != nil {
		return nil, ErrCorrupted
	}
	return s, nil
}

// Serialization helpers.

func writeString(w *bytes.Buffer, s string) {
	binary.Write(w, binary.LittleEndian, uint16(len(s)))
	w.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func writeBytes(w *bytes.Buffer, data []byte) {
	binary.Write(w, binary.LittleEndian, uint32(len(data)))
	w.Write(data)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
