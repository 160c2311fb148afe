// Package config provides the layered settings store for vectorizer.
//
// Settings are merged once at startup from defaults, the global settings
// file, the per-project override file, environment variables and command-line
// flags. The resulting Settings value is validated and then handed to the
// pipeline; nothing mutates it afterwards.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ErrConfiguration indicates a missing or invalid setting. It is always fatal
// and is reported before any file or network I/O takes place.
var ErrConfiguration = errors.New("configuration error")

const (
	// DefaultQdrantURL is the gRPC endpoint of a local Qdrant.
	DefaultQdrantURL = "http://localhost:6334"

	// DefaultMaxFileSize caps the size of a single indexed file.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// DefaultQueueSize is the depth of the embedding request queue.
	DefaultQueueSize = 100

	// DefaultRemoteModel is the model alias used when no model is configured.
	DefaultRemoteModel = "L6"
)

// Settings holds the complete vectorizer configuration.
type Settings struct {
	Indexer     IndexerConfig     `koanf:"indexer"`
	Database    DatabaseConfig    `koanf:"database"`
	Model       ModelConfig       `koanf:"model"`
	Logging     LoggingConfig     `koanf:"logging"`
	Performance PerformanceConfig `koanf:"performance"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// IndexerConfig controls traversal and fragmentation.
type IndexerConfig struct {
	// Project is the project root: a directory or a single file.
	Project string `koanf:"project"`

	// Extensions is the extension allow-list. "*" accepts every file.
	Extensions []string `koanf:"extensions"`

	// Directories restricts traversal to these sub-directories of Project.
	Directories []string `koanf:"directories"`

	// Ignored holds ignore-style rules evaluated relative to Project.
	Ignored []string `koanf:"ignored"`

	// IgnoreFiles are read from the project root and appended to Ignored.
	IgnoreFiles []string `koanf:"ignore_files"`

	Workers     int    `koanf:"workers"`
	MaxFileSize int64  `koanf:"max_file_size"`
	LogLevel    string `koanf:"log_level"`

	// ProjectFile creates <project>/.vectorizer with defaults when missing.
	ProjectFile bool `koanf:"project_file"`

	// RedactSecrets replaces detected credentials in file text before it
	// is fragmented. SecretsAllowlist holds regexes of values to keep.
	RedactSecrets    bool     `koanf:"redact_secrets"`
	SecretsAllowlist []string `koanf:"secrets_allowlist"`

	// IsFile is resolved at load time; it is never read from a source.
	IsFile bool `koanf:"-"`
}

// DatabaseConfig controls the vector store.
type DatabaseConfig struct {
	URL        string   `koanf:"url"`
	Collection string   `koanf:"collection"`
	MaxTokens  int      `koanf:"max_tokens"`
	Metadata   string   `koanf:"metadata"`
	Provider   string   `koanf:"provider"`
	APIKey     Secret   `koanf:"api_key"`
	BatchSize  int      `koanf:"batch_size"`
	Timeout    Duration `koanf:"timeout"`

	// ChromemPath is the on-disk location of the embedded store.
	ChromemPath string `koanf:"chromem_path"`
}

// ModelConfig describes where the embedding model comes from.
type ModelConfig struct {
	// Provider is "fastembed" (default) or "tei".
	Provider string `koanf:"provider"`

	// Local selects a model directory on disk; Location is then a path.
	// Otherwise Location names a remote model (e.g. "L6").
	Local    bool   `koanf:"local"`
	Location string `koanf:"location"`

	CacheDir  string `koanf:"cache_dir"`
	BaseURL   string `koanf:"base_url"`
	BatchSize int    `koanf:"batch_size"`
	QueueSize int    `koanf:"queue_size"`

	// RateLimit caps tei requests per second. Zero is unlimited.
	RateLimit float64 `koanf:"rate_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// PerformanceConfig controls the per-run metrics report.
type PerformanceConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// TelemetryConfig controls OpenTelemetry export of run traces and model
// metrics to an OTLP collector.
type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is host:port of the collector.
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" (default) or "http/protobuf".
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS; only allowed for local endpoints.
	Insecure bool `koanf:"insecure"`

	// SampleRate is the fraction of runs traced, up to 1. Zero means 1 and
	// a negative rate disables tracing.
	SampleRate float64 `koanf:"sample_rate"`

	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ConfigDir returns ~/.config/vectorizer.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vectorizer"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(s *Settings) {
	if s.Indexer.Workers <= 0 {
		s.Indexer.Workers = runtime.NumCPU()
	}
	if s.Indexer.MaxFileSize <= 0 {
		s.Indexer.MaxFileSize = DefaultMaxFileSize
	}
	if s.Indexer.LogLevel == "" {
		s.Indexer.LogLevel = "warn"
	}
	if s.Indexer.IgnoreFiles == nil {
		s.Indexer.IgnoreFiles = []string{".vectorizerignore"}
	}

	if s.Database.URL == "" {
		s.Database.URL = DefaultQdrantURL
	}
	if s.Database.Provider == "" {
		s.Database.Provider = "qdrant"
	}
	if s.Database.BatchSize <= 0 {
		s.Database.BatchSize = 256
	}
	if s.Database.Timeout == 0 {
		s.Database.Timeout = Duration(30 * time.Second)
	}
	if s.Database.ChromemPath == "" {
		s.Database.ChromemPath = "~/.config/vectorizer/vectorstore"
	}

	if s.Model.Provider == "" {
		s.Model.Provider = "fastembed"
	}
	if s.Model.Location == "" && !s.Model.Local {
		s.Model.Location = DefaultRemoteModel
	}
	if s.Model.CacheDir == "" {
		s.Model.CacheDir = "~/.cache/vectorizer/models"
	}
	if s.Model.BaseURL == "" {
		s.Model.BaseURL = "http://localhost:8080"
	}
	if s.Model.BatchSize <= 0 {
		s.Model.BatchSize = 1
	}
	if s.Model.QueueSize <= 0 {
		s.Model.QueueSize = DefaultQueueSize
	}

	if s.Logging.Format == "" {
		s.Logging.Format = "console"
	}

	if s.Telemetry.Endpoint == "" {
		s.Telemetry.Endpoint = "localhost:4317"
	}
	if s.Telemetry.Protocol == "" {
		s.Telemetry.Protocol = "grpc"
	}
	if s.Telemetry.SampleRate == 0 {
		s.Telemetry.SampleRate = 1
	}
	if s.Telemetry.ExportInterval == 0 {
		s.Telemetry.ExportInterval = Duration(15 * time.Second)
	}
	if s.Telemetry.ShutdownTimeout == 0 {
		s.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate reports the first missing or invalid required setting.
//
// Returns an error wrapping ErrConfiguration if:
//   - no project path is set
//   - no collection is set
//   - the project is a directory and no extensions are configured
//   - a configured directory lies outside the project
//   - the database URL cannot be parsed
//   - a local model is selected without a location
//   - the model rate limit is negative
//   - a secrets allowlist entry is not a valid regex
func (s *Settings) Validate() error {
	if s.Indexer.Project == "" {
		return fmt.Errorf("%w: no project path provided", ErrConfiguration)
	}
	if s.Database.Collection == "" {
		return fmt.Errorf("%w: no collection provided", ErrConfiguration)
	}
	if !s.Indexer.IsFile && len(s.Indexer.Extensions) == 0 {
		return fmt.Errorf("%w: no extensions provided, list the file extensions to upload (or \"*\")", ErrConfiguration)
	}
	if !s.Indexer.IsFile {
		for _, d := range s.Indexer.Directories {
			dir := d
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(s.Indexer.Project, dir)
			}
			rel, err := filepath.Rel(s.Indexer.Project, dir)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return fmt.Errorf("%w: directory %s is outside the project %s", ErrConfiguration, d, s.Indexer.Project)
			}
		}
	}
	if _, _, _, err := s.Database.Endpoint(); err != nil {
		return err
	}
	switch s.Database.Provider {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("%w: unknown database provider %q", ErrConfiguration, s.Database.Provider)
	}
	if s.Model.Local && s.Model.Location == "" {
		return fmt.Errorf("%w: local model requires a path", ErrConfiguration)
	}
	switch s.Model.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("%w: unknown model provider %q", ErrConfiguration, s.Model.Provider)
	}
	if s.Model.RateLimit < 0 {
		return fmt.Errorf("%w: model rate_limit must not be negative", ErrConfiguration)
	}
	for _, pattern := range s.Indexer.SecretsAllowlist {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: secrets allowlist %q: %v", ErrConfiguration, pattern, err)
		}
	}
	return nil
}

// Endpoint splits the database URL into host, port and TLS flag.
func (d DatabaseConfig) Endpoint() (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(d.URL)
	if err != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("%w: invalid database url %q", ErrConfiguration, d.URL)
	}
	host = u.Hostname()
	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("%w: invalid database port %q", ErrConfiguration, p)
		}
	}
	return host, port, u.Scheme == "https", nil
}
