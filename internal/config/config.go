package config

import "time"

// Config holds the complete node configuration.
type Config struct {
	// Listen is this node's RPC endpoint as "ip:port". It must appear in
	// Members.
	Listen string

	// Members is the fixed cluster member set, including this node.
	Members []string

	// Path is the data directory: <Path>/db holds applied state,
	// <Path>/log holds log entries and Raft metadata, <Path>/LOG is the
	// operational log.
	Path string

	// Heartbeat is the leader heartbeat period.
	Heartbeat time.Duration

	// ElectionTimeout is the follower election timeout, also used as the
	// leader staleness bound.
	ElectionTimeout time.Duration

	// SingleMode skips elections and assumes leadership when the cluster
	// has exactly one member.
	SingleMode bool

	// Logging configures the operational log.
	Logging LogConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:9000",
		Path:            "./raftkv-data",
		Heartbeat:       100 * time.Millisecond,
		ElectionTimeout: time.Second,
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
