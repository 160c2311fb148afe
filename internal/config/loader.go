package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// SettingsFileName is the global settings file inside ConfigDir.
	SettingsFileName = "settings.toml"

	// ProjectFileName is the per-project override file at the project root.
	ProjectFileName = ".vectorizer"

	envPrefix = "VECTORIZER_"
)

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"indexer.extensions":        true,
	"indexer.directories":       true,
	"indexer.ignored":           true,
	"indexer.ignore_files":      true,
	"indexer.secrets_allowlist": true,
}

// LoadOptions controls where settings are read from.
type LoadOptions struct {
	// ConfigPath is the global settings file. Defaults to
	// ~/.config/vectorizer/settings.toml. Files ending in .yaml or .yml are
	// parsed as YAML.
	ConfigPath string

	// Overrides are flat dotted keys (e.g. "database.url") set from the
	// command line. They take precedence over every other source.
	Overrides map[string]any

	// NoCreate disables writing a default settings file when none exists.
	NoCreate bool
}

// Load merges every settings source and returns validated Settings.
//
// Precedence (highest to lowest):
//  1. Overrides (command-line flags)
//  2. Environment variables (VECTORIZER_DATABASE_URL -> database.url)
//  3. Project file (<project>/.vectorizer)
//  4. Global settings file
//  5. Defaults
//
// The project file location depends on indexer.project, so the global file,
// environment and overrides are merged first to resolve it and then
// re-applied on top of the project file.
func Load(opts LoadOptions) (*Settings, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, SettingsFileName)
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) && !opts.NoCreate {
		if err := WriteDefaultSettings(configPath); err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")
	if err := loadFile(k, configPath); err != nil {
		return nil, err
	}
	if err := loadRuntime(k, opts.Overrides); err != nil {
		return nil, err
	}

	project, err := ExpandPath(k.String("indexer.project"))
	if err != nil {
		return nil, fmt.Errorf("failed to expand project path: %w", err)
	}
	if project != "" {
		if info, err := os.Stat(project); err == nil && info.IsDir() {
			projectFile := filepath.Join(project, ProjectFileName)
			if err := loadFile(k, projectFile); err != nil {
				return nil, err
			}
			if err := loadRuntime(k, opts.Overrides); err != nil {
				return nil, err
			}
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	applyDefaults(&s)

	if err := resolveProject(&s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if s.Indexer.ProjectFile && !s.Indexer.IsFile {
		if err := writeProjectFile(&s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// loadFile merges a TOML or YAML file into k. A missing file is not an error.
func loadFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat settings file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("%w: settings file %s exceeds %d bytes", ErrConfiguration, path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var parser koanf.Parser = TOMLParser()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	}
	if err := k.Load(rawbytes.Provider(content), parser); err != nil {
		return fmt.Errorf("%w: failed to parse %s: %v", ErrConfiguration, path, err)
	}
	return nil
}

// loadRuntime merges environment variables and then command-line overrides.
func loadRuntime(k *koanf.Koanf, overrides map[string]any) error {
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return fmt.Errorf("failed to load overrides: %w", err)
		}
	}
	return nil
}

// envTransform maps VECTORIZER_SECTION_FIELD_NAME to section.field_name,
// splitting on the first underscore only. VECTORIZER_LOG is an alias for
// indexer.log_level.
func envTransform(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if lower == "log" {
		return "indexer.log_level", value
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return "", nil
	}
	path := parts[0] + "." + parts[1]

	if listKeys[path] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return path, items
	}
	return path, value
}

// resolveProject expands the project path and records whether it is a file.
func resolveProject(s *Settings) error {
	if s.Indexer.Project == "" {
		return nil
	}
	project, err := ExpandPath(s.Indexer.Project)
	if err != nil {
		return fmt.Errorf("failed to expand project path: %w", err)
	}
	if s.Indexer.Project, err = filepath.Abs(project); err != nil {
		return fmt.Errorf("%w: project path %s: %v", ErrConfiguration, project, err)
	}

	info, err := os.Stat(s.Indexer.Project)
	if err != nil {
		return fmt.Errorf("%w: project path %s: %v", ErrConfiguration, s.Indexer.Project, err)
	}
	s.Indexer.IsFile = !info.IsDir()
	return nil
}

const defaultSettings = `# vectorizer global settings
#
# Values here are overridden by <project>/.vectorizer, VECTORIZER_* environment
# variables and command-line flags, in that order.

[indexer]
# project = "/path/to/project"
# extensions = ["md", "go"]
# ignored = ["target/", "*.log"]
ignore_files = [".vectorizerignore"]
log_level = "warn"
# redact_secrets = true
# secrets_allowlist = ["EXAMPLE_[A-Z]+"]

[database]
url = "http://localhost:6334"
provider = "qdrant"
# collection = "my-collection"
# max_tokens = 256
# metadata = '{"team": "docs"}'

[model]
provider = "fastembed"
local = false
location = "L6"
# provider = "tei"
# base_url = "http://localhost:8080"
# rate_limit = 20.0

[logging]
format = "console"

[performance]
enabled = false
# path = "/tmp/vectorizer.prom"

[telemetry]
enabled = false
# endpoint = "localhost:4317"
# protocol = "grpc"
# insecure = true
# sample_rate = 1.0
`

// WriteDefaultSettings creates the global settings file with commented
// defaults. The parent directory is created with 0700 permissions.
func WriteDefaultSettings(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(defaultSettings), 0600); err != nil {
		return fmt.Errorf("failed to write default settings %s: %w", path, err)
	}
	return nil
}

// writeProjectFile creates <project>/.vectorizer from the project-scoped
// settings when it does not exist yet.
func writeProjectFile(s *Settings) error {
	path := filepath.Join(s.Indexer.Project, ProjectFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	indexer := map[string]interface{}{
		"extensions": nonNil(s.Indexer.Extensions),
		"ignored":    nonNil(s.Indexer.Ignored),
	}
	if len(s.Indexer.Directories) > 0 {
		indexer["directories"] = s.Indexer.Directories
	}
	database := map[string]interface{}{
		"collection": s.Database.Collection,
	}
	if s.Database.MaxTokens > 0 {
		database["max_tokens"] = s.Database.MaxTokens
	}
	if s.Database.Metadata != "" {
		database["metadata"] = s.Database.Metadata
	}

	b, err := TOMLParser().Marshal(map[string]interface{}{
		"indexer":  indexer,
		"database": database,
	})
	if err != nil {
		return fmt.Errorf("failed to encode project file: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write project file %s: %w", path, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
