// Package logging provides structured logging for the raftkv server.
//
// The Logger interface follows a message-plus-key-value-pairs style. The
// default implementation is backed by zap; a no-op implementation is
// available for tests and as the default inside library packages.
package logging
