// Package store wraps an ordered, byte-keyed durable store used both for
// the applied key-value state and for the Raft log-and-metadata database.
//
// The wrapper is deliberately thin: point Get/Put/Delete and batch writes,
// all synced, plus ordered iteration over a key prefix. Any engine with
// atomic single-key writes would do; goleveldb is used because the rest of
// the system needs exactly its contract (ordered byte keys, durable batch
// and point writes) and nothing more.
package store
