package logging

import "github.com/google/uuid"

// GenerateRequestID returns a unique ID used to correlate all log lines
// produced while handling a single client command.
func GenerateRequestID() string {
	return uuid.NewString()
}
