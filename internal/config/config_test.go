package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `# raftkv node config
listen: 10.0.0.1:9000
path: /var/lib/raftkv
heartbeat: 50ms
electionTimeout: 500ms
singleMode: false
members:
  - 10.0.0.1:9000
  - 10.0.0.2:9000
  - 10.0.0.3:9000
logging:
  level: debug
  format: json
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.Listen != "10.0.0.1:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Path != "/var/lib/raftkv" {
		t.Errorf("Path = %q", cfg.Path)
	}
	if cfg.Heartbeat != 50*time.Millisecond {
		t.Errorf("Heartbeat = %v", cfg.Heartbeat)
	}
	if cfg.ElectionTimeout != 500*time.Millisecond {
		t.Errorf("ElectionTimeout = %v", cfg.ElectionTimeout)
	}
	if cfg.SingleMode {
		t.Error("SingleMode = true, want false")
	}
	if len(cfg.Members) != 3 {
		t.Fatalf("Members = %v, want 3 entries", cfg.Members)
	}
	if cfg.Members[1] != "10.0.0.2:9000" {
		t.Errorf("Members[1] = %q", cfg.Members[1])
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("listen: 127.0.0.1:9000\nmembers:\n  - 127.0.0.1:9000\n"))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.Heartbeat != def.Heartbeat {
		t.Errorf("Heartbeat = %v, want default %v", cfg.Heartbeat, def.Heartbeat)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"bad duration", "heartbeat: soon\n", ErrInvalidDuration},
		{"bad bool", "singleMode: maybe\n", ErrInvalidBool},
		{"unknown key", "color: red\n", ErrUnexpectedToken},
		{"bad list item", "members:\n  10.0.0.1:9000\n", ErrInvalidListItem},
		{"no colon", "just a line\n", ErrUnexpectedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.data)); err != tt.want {
				t.Errorf("ParseConfig = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("RAFTKV_TEST_LISTEN", "192.168.1.5:9100")

	data := "listen: ${RAFTKV_TEST_LISTEN}\npath: ${RAFTKV_TEST_PATH:-/tmp/raftkv}\nmembers:\n  - 192.168.1.5:9100\n"
	cfg, err := ParseConfig([]byte(data))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Listen != "192.168.1.5:9100" {
		t.Errorf("Listen = %q, env var not substituted", cfg.Listen)
	}
	if cfg.Path != "/tmp/raftkv" {
		t.Errorf("Path = %q, default not applied", cfg.Path)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raftkv.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != "10.0.0.1:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err != ErrFileNotFound {
		t.Errorf("LoadConfig missing = %v, want ErrFileNotFound", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Listen:          "127.0.0.1:9000",
			Members:         []string{"127.0.0.1:9000", "127.0.0.1:9001"},
			Path:            "/tmp/raftkv",
			Heartbeat:       50 * time.Millisecond,
			ElectionTimeout: 500 * time.Millisecond,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"missing listen", func(c *Config) { c.Listen = "" }, ErrMissingListen},
		{"bad listen", func(c *Config) { c.Listen = "nohost" }, ErrInvalidListen},
		{"no members", func(c *Config) { c.Members = nil }, ErrMissingMembers},
		{"self absent", func(c *Config) { c.Listen = "127.0.0.1:9999" }, ErrSelfNotMember},
		{"no path", func(c *Config) { c.Path = "" }, ErrMissingPath},
		{"zero heartbeat", func(c *Config) { c.Heartbeat = 0 }, ErrInvalidTimeout},
		{"heartbeat too long", func(c *Config) { c.Heartbeat = time.Second }, ErrTimeoutOrdering},
		{"single mode multi", func(c *Config) { c.SingleMode = true }, ErrSingleModeCluster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != tt.want {
				t.Errorf("Validate = %v, want %v", err, tt.want)
			}
		})
	}
}
