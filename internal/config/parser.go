package config

import (
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parser errors.
var (
	ErrFileNotFound    = errors.New("config: file not found")
	ErrUnexpectedToken = errors.New("config: unexpected token")
	ErrInvalidDuration = errors.New("config: invalid duration")
	ErrInvalidBool     = errors.New("config: invalid boolean")
	ErrInvalidListItem = errors.New("config: invalid list item")
)

// LoadConfig loads configuration from a file path, substitutes environment
// variables, and applies defaults for missing values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses configuration data and applies defaults for missing
// values.
func ParseConfig(data []byte) (*Config, error) {
	data = substituteEnvVars(data)

	cfg := DefaultConfig()
	if err := parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		content := string(match[2 : len(match)-1])

		if idx := strings.Index(content, ":-"); idx != -1 {
			name, def := content[:idx], content[idx+2:]
			if v, ok := os.LookupEnv(name); ok {
				return []byte(v)
			}
			return []byte(def)
		}
		return []byte(os.Getenv(content))
	})
}

// parse walks the flat YAML subset line by line. Supported constructs:
// "key: value" at top level, a "logging:" section with indented keys, and a
// "members:" list of "- item" lines.
func parse(data []byte, cfg *Config) error {
	lines := strings.Split(string(data), "\n")

	section := "" // current nested section, "" means top level
	inMembers := false

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		if line == "" {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		indented := line[0] == ' ' || line[0] == '\t'

		if inMembers && indented {
			if !strings.HasPrefix(trimmed, "- ") {
				return ErrInvalidListItem
			}
			cfg.Members = append(cfg.Members, strings.TrimSpace(trimmed[2:]))
			continue
		}
		inMembers = false

		if !indented {
			section = ""
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return ErrUnexpectedToken
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if value == "" {
			switch key {
			case "members":
				cfg.Members = nil
				inMembers = true
			case "logging":
				section = "logging"
			default:
				return ErrUnexpectedToken
			}
			continue
		}

		if section == "logging" {
			switch key {
			case "level":
				cfg.Logging.Level = value
			case "format":
				cfg.Logging.Format = value
			default:
				return ErrUnexpectedToken
			}
			continue
		}

		switch key {
		case "listen":
			cfg.Listen = value
		case "path":
			cfg.Path = value
		case "heartbeat":
			d, err := time.ParseDuration(value)
			if err != nil {
				return ErrInvalidDuration
			}
			cfg.Heartbeat = d
		case "electionTimeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return ErrInvalidDuration
			}
			cfg.ElectionTimeout = d
		case "singleMode":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return ErrInvalidBool
			}
			cfg.SingleMode = b
		default:
			return ErrUnexpectedToken
		}
	}
	return nil
}
