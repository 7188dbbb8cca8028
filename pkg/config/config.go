package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StoreBackendFile = "file"
	StoreBackendBolt = "bolt"

	// DefaultMaxUploadBytes caps a single upload request body
	DefaultMaxUploadBytes int64 = 500 * 1024 * 1024
)

// Config is the complete service configuration. It is built once at startup
// and passed by value into every component that needs it.
type Config struct {
	// Storage
	StorageRoot  string `env:"BTUMOR_STORAGE_ROOT"`
	StoreBackend string `env:"BTUMOR_STORE_BACKEND"`
	BoltPath     string `env:"BTUMOR_BOLT_PATH"`

	// Upload policy
	MaxUploadBytes    int64    `env:"BTUMOR_MAX_UPLOAD_BYTES"`
	AllowedExtensions []string `env:"BTUMOR_ALLOWED_EXTENSIONS"`
	SequenceTypes     []string `env:"BTUMOR_SEQUENCE_TYPES"`

	// HTTP
	HTTPAddr    string   `env:"BTUMOR_HTTP_ADDR"`
	HTTPPort    int      `env:"BTUMOR_HTTP_PORT"`
	CORSOrigins []string `env:"BTUMOR_CORS_ORIGINS"`

	// Listing
	ListConcurrency int `env:"BTUMOR_LIST_CONCURRENCY"`

	// Observability
	LogLevel       string `env:"BTUMOR_LOG_LEVEL"`
	MetricsEnabled bool   `env:"BTUMOR_METRICS_ENABLED"`

	// Service identification
	ServiceName    string `env:"BTUMOR_SERVICE_NAME"`
	ServiceVersion string `env:"BTUMOR_SERVICE_VERSION"`
}

// Load builds a Config from defaults, an optional env file and the process
// environment, then validates it.
func Load(envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if envFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			envFile = ".env"
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		StorageRoot:       "./uploads",
		StoreBackend:      StoreBackendFile,
		BoltPath:          "",
		MaxUploadBytes:    DefaultMaxUploadBytes,
		AllowedExtensions: []string{".nii", ".nii.gz"},
		SequenceTypes:     []string{"T1", "T1CE", "T2", "FLAIR"},
		HTTPAddr:          "0.0.0.0",
		HTTPPort:          5001,
		CORSOrigins:       []string{"*"},
		ListConcurrency:   8,
		LogLevel:          "info",
		MetricsEnabled:    true,
		ServiceName:       "btumor-intake",
		ServiceVersion:    "dev",
	}
}

type envMapping struct {
	key    string
	setter func(cfg *Config, value string) error
}

func envMappings() []envMapping {
	return []envMapping{
		{"BTUMOR_STORAGE_ROOT", func(cfg *Config, v string) error {
			cfg.StorageRoot = v
			return nil
		}},
		{"BTUMOR_STORE_BACKEND", func(cfg *Config, v string) error {
			cfg.StoreBackend = strings.ToLower(v)
			return nil
		}},
		{"BTUMOR_BOLT_PATH", func(cfg *Config, v string) error {
			cfg.BoltPath = v
			return nil
		}},
		{"BTUMOR_MAX_UPLOAD_BYTES", func(cfg *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			cfg.MaxUploadBytes = n
			return nil
		}},
		{"BTUMOR_ALLOWED_EXTENSIONS", func(cfg *Config, v string) error {
			cfg.AllowedExtensions = splitList(v)
			return nil
		}},
		{"BTUMOR_SEQUENCE_TYPES", func(cfg *Config, v string) error {
			cfg.SequenceTypes = splitList(v)
			return nil
		}},
		{"BTUMOR_HTTP_ADDR", func(cfg *Config, v string) error {
			cfg.HTTPAddr = v
			return nil
		}},
		{"BTUMOR_HTTP_PORT", func(cfg *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			cfg.HTTPPort = n
			return nil
		}},
		{"BTUMOR_CORS_ORIGINS", func(cfg *Config, v string) error {
			cfg.CORSOrigins = splitList(v)
			return nil
		}},
		{"BTUMOR_LIST_CONCURRENCY", func(cfg *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			cfg.ListConcurrency = n
			return nil
		}},
		{"BTUMOR_LOG_LEVEL", func(cfg *Config, v string) error {
			cfg.LogLevel = strings.ToLower(v)
			return nil
		}},
		{"BTUMOR_METRICS_ENABLED", func(cfg *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			cfg.MetricsEnabled = b
			return nil
		}},
		{"BTUMOR_SERVICE_NAME", func(cfg *Config, v string) error {
			cfg.ServiceName = v
			return nil
		}},
		{"BTUMOR_SERVICE_VERSION", func(cfg *Config, v string) error {
			cfg.ServiceVersion = v
			return nil
		}},
	}
}

func loadFromEnv(cfg *Config) error {
	for _, m := range envMappings() {
		if v := os.Getenv(m.key); v != "" {
			if err := m.setter(cfg, v); err != nil {
				return fmt.Errorf("failed to set %s: %w", m.key, err)
			}
		}
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root is required")
	}
	switch c.StoreBackend {
	case StoreBackendFile:
	case StoreBackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("bolt_path is required for the bolt store backend")
		}
	default:
		return fmt.Errorf("store_backend must be one of: file, bolt")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}
	for _, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("allowed extension %q must start with a dot", ext)
		}
	}
	if len(c.SequenceTypes) == 0 {
		return fmt.Errorf("at least one sequence type is required")
	}
	seen := make(map[string]bool, len(c.SequenceTypes))
	for _, st := range c.SequenceTypes {
		if st == "" || strings.ContainsAny(st, `/\.`) {
			return fmt.Errorf("invalid sequence type %q", st)
		}
		if seen[st] {
			return fmt.Errorf("duplicate sequence type %q", st)
		}
		seen[st] = true
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535")
	}
	if c.ListConcurrency <= 0 {
		return fmt.Errorf("list_concurrency must be positive")
	}
	validLogLevels := []string{"debug", "info", "warn", "error"}
	valid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPAddr, c.HTTPPort)
}

// EnsureDirectories creates the storage root and the bolt file's parent
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.StorageRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	if c.StoreBackend == StoreBackendBolt && c.BoltPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.BoltPath), 0o755); err != nil {
			return fmt.Errorf("failed to create bolt store directory: %w", err)
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
