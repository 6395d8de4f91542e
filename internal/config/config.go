package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Keys looked up in the configuration source
const (
	KeyEndpointURL  = "HF_API_LLAMA2_BASE"
	KeyAPIKey       = "HF_API_KEY"
	KeyTimeout      = "LLAMACHAT_TIMEOUT"
	KeyMaxNewTokens = "LLAMACHAT_MAX_NEW_TOKENS"
)

const (
	DefaultTimeout      = 2 * time.Minute
	DefaultMaxNewTokens = 1000
)

// Config holds application configuration
type Config struct {
	EndpointURL  string        // Base URL of the hosted text-generation endpoint
	APIKey       string        // Bearer credential for the endpoint
	Timeout      time.Duration // Upper bound for a single generation call
	MaxNewTokens int

	// CLI settings
	Verbose bool   // Echo every reply to stdout
	Debug   bool   // Enable debug logging
	LogDir  string // Directory for rotated logs, traces and metrics
	DBPath  string // SQLite transcript archive; empty disables it
	EnvFile string // Optional dotenv file
}

// Source supplies configuration properties by key
type Source interface {
	Lookup(key string) (string, bool)
}

// MapSource is a Source backed by a plain map
type MapSource map[string]string

// Lookup implements Source
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// EnvSource reads the process environment, falling back to values from a
// dotenv file.
type EnvSource struct {
	file map[string]string
}

// NewEnvSource loads path with godotenv. A missing file is not an error.
func NewEnvSource(path string) (*EnvSource, error) {
	src := &EnvSource{file: map[string]string{}}
	if path == "" {
		return src, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return src, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	src.file = values
	return src, nil
}

// Lookup implements Source. The process environment wins over the file.
func (s *EnvSource) Lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

// FromSource builds a Config from src. Missing endpoint or credential keys are
// left empty; they are reported when the endpoint is first contacted.
func FromSource(src Source) (Config, error) {
	cfg := Config{
		Timeout:      DefaultTimeout,
		MaxNewTokens: DefaultMaxNewTokens,
	}

	cfg.EndpointURL, _ = src.Lookup(KeyEndpointURL)
	cfg.APIKey, _ = src.Lookup(KeyAPIKey)

	if v, ok := src.Lookup(KeyTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyTimeout, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", KeyTimeout)
		}
		cfg.Timeout = d
	}

	if v, ok := src.Lookup(KeyMaxNewTokens); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyMaxNewTokens, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", KeyMaxNewTokens)
		}
		cfg.MaxNewTokens = n
	}

	return cfg, nil
}
