package raft

import "encoding/binary"

// Log entry operation types.
const (
	OpRead   uint8 = iota // no-op on apply, used as a read barrier
	OpWrite               // put key/value
	OpDelete              // delete key
)

// LogEntry is a single entry in the replicated log. Indices are 1-based and
// dense; index 0 is an implicit sentinel with term 0.
type LogEntry struct {
	Term  uint64
	Index uint64
	Op    uint8
	Key   []byte
	Value []byte
}

// Serialize encodes the log entry to bytes.
// Format: [Term:8][Index:8][Op:1][KeyLen:4][Key][ValueLen:4][Value]
func (e *LogEntry) Serialize() []byte {
	size := 8 + 8 + 1 + 4 + len(e.Key) + 4 + len(e.Value)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint64(buf[0:8], e.Term)
	binary.LittleEndian.PutUint64(buf[8:16], e.Index)
	buf[16] = e.Op
	binary.LittleEndian.PutUint32(buf[17:21], uint32(len(e.Key)))
	off := 21 + copy(buf[21:], e.Key)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(e.Value)))
	copy(buf[off+4:], e.Value)

	return buf
}

// DeserializeLogEntry decodes a log entry from bytes.
func DeserializeLogEntry(data []byte) (*LogEntry, error) {
	if len(data) < 21 {
		return nil, ErrCorrupted
	}

	keyLen := binary.LittleEndian.Uint32(data[17:21])
	if uint32(len(data)) < 21+keyLen+4 {
		return nil, ErrCorrupted
	}
	off := 21 + keyLen
	valLen := binary.LittleEndian.Uint32(data[off : off+4])
	if uint32(len(data)) < off+4+valLen {
		return nil, ErrCorrupted
	}

	e := &LogEntry{
		Term:  binary.LittleEndian.Uint64(data[0:8]),
		Index: binary.LittleEndian.Uint64(data[8:16]),
		Op:    data[16],
	}
	if keyLen > 0 {
		e.Key = append([]byte(nil), data[21:off]...)
	}
	if valLen > 0 {
		e.Value = append([]byte(nil), data[off+4:off+4+valLen]...)
	}
	return e, nil
}
