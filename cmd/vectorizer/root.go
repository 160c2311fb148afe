package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/vectorizer/internal/config"
	"github.com/fyrsmithlabs/vectorizer/internal/logging"
	"github.com/fyrsmithlabs/vectorizer/internal/pipeline"
	"github.com/fyrsmithlabs/vectorizer/internal/telemetry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootFlags holds the persistent flags. Only flags set on the command line
// override the settings files.
type rootFlags struct {
	configPath  string
	project     string
	extensions  []string
	directories []string
	ignored     []string
	collection  string
	url         string
	metadata    string
	local       string
	remote      string
	tokenMax    int
	level       string
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootFlags{})
}

func buildRootCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectorizer",
		Short: "Index project files into a vector database",
		Long: `vectorizer walks a project directory, splits every matching file into
fragments of at most --tokenmax tokens, embeds each fragment and upserts the
vectors into a Qdrant (or embedded chromem) collection.

Settings are merged from ~/.config/vectorizer/settings.toml, the project's
.vectorizer file, VECTORIZER_* environment variables and these flags, in
increasing order of precedence.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "global settings file (default ~/.config/vectorizer/settings.toml)")
	pf.StringVarP(&f.project, "project", "p", "", "project root directory, or a single file")
	pf.StringSliceVarP(&f.extensions, "extensions", "e", nil, "file extensions to include, comma separated (\"*\" for all)")
	pf.StringSliceVarP(&f.directories, "directories", "d", nil, "sub-directories of the project to include")
	pf.StringSliceVarP(&f.ignored, "ignored", "i", nil, "ignore rules, gitignore syntax")
	pf.StringVarP(&f.collection, "collection", "c", "", "target collection")
	pf.StringVarP(&f.url, "url", "u", "", "database url, e.g. http://localhost:6334")
	pf.StringVarP(&f.metadata, "metadata", "m", "", "JSON object added to every document's metadata")
	pf.StringVarP(&f.local, "local", "l", "", "path to a local model directory")
	pf.StringVarP(&f.remote, "remote", "r", "", "name of a downloadable model, e.g. L6")
	pf.IntVarP(&f.tokenMax, "tokenmax", "t", 0, "maximum tokens per fragment (at most 256)")
	pf.StringVarP(&f.level, "level", "L", "", "log level: trace, debug, info, warn or error")
	cmd.MarkFlagsMutuallyExclusive("local", "remote")

	cmd.AddCommand(
		newUploadCmd(f),
		newIndexCmd(f),
		newTestCmd(f),
		newSearchCmd(f),
		newVersionCmd(),
	)
	for _, sub := range extraCommands {
		cmd.AddCommand(sub())
	}
	return cmd
}

// extraCommands are registered by build-tagged files.
var extraCommands []func() *cobra.Command

// overrides maps the flags set on cmd to settings keys.
func (f *rootFlags) overrides(cmd *cobra.Command) map[string]any {
	changed := cmd.Flags().Changed
	out := make(map[string]any)
	if changed("project") {
		out["indexer.project"] = f.project
	}
	if changed("extensions") {
		out["indexer.extensions"] = trimAll(f.extensions)
	}
	if changed("directories") {
		out["indexer.directories"] = trimAll(f.directories)
	}
	if changed("ignored") {
		out["indexer.ignored"] = trimAll(f.ignored)
	}
	if changed("collection") {
		out["database.collection"] = f.collection
	}
	if changed("url") {
		out["database.url"] = f.url
	}
	if changed("metadata") {
		out["database.metadata"] = f.metadata
	}
	if changed("tokenmax") {
		out["database.max_tokens"] = f.tokenMax
	}
	if changed("local") {
		out["model.local"] = true
		out["model.location"] = f.local
	}
	if changed("remote") {
		out["model.local"] = false
		out["model.location"] = f.remote
	}
	if changed("level") {
		out["indexer.log_level"] = f.level
	}
	return out
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// env is what every pipeline command needs.
type env struct {
	ctx       context.Context
	settings  *config.Settings
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	runner    *pipeline.Runner
}

// setup loads settings, builds the logger and the runner.
func (f *rootFlags) setup(cmd *cobra.Command) (*env, error) {
	settings, err := config.Load(config.LoadOptions{
		ConfigPath: f.configPath,
		Overrides:  f.overrides(cmd),
	})
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(settings)
	if err != nil {
		return nil, err
	}

	ctx := logging.WithCommand(cmd.Context(), cmd.Name())
	ctx = logging.WithRunID(ctx, uuid.NewString())
	ctx = logging.WithCollection(ctx, settings.Database.Collection)
	cmd.SetContext(ctx)
	logger.Debug(ctx, "settings loaded",
		zap.String("project", settings.Indexer.Project),
		zap.Strings("extensions", settings.Indexer.Extensions),
		zap.String("collection", settings.Database.Collection),
		zap.String("provider", settings.Database.Provider),
		logging.Secret("api_key", settings.Database.APIKey),
	)

	tel, err := telemetry.New(ctx, settings.Telemetry, version, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	runner := pipeline.New(*settings, logger,
		pipeline.WithOutput(cmd.OutOrStdout()),
		pipeline.WithTelemetry(tel),
	)
	return &env{ctx: ctx, settings: settings, logger: logger, telemetry: tel, runner: runner}, nil
}

// close flushes telemetry and the logger.
func (e *env) close() {
	if err := e.telemetry.Shutdown(context.WithoutCancel(e.ctx)); err != nil {
		e.logger.Warn(e.ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = e.logger.Close()
}

// newLogger builds the CLI logger: console on stderr plus the optional
// log file.
func newLogger(s *config.Settings) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(s.Indexer.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid log level %q", config.ErrConfiguration, s.Indexer.LogLevel)
	}
	cfg.Level = level
	cfg.Format = s.Logging.Format
	if s.Logging.File != "" {
		path, err := config.ExpandPath(s.Logging.File)
		if err != nil {
			return nil, err
		}
		cfg.Output.File = path
	}
	return logging.NewLogger(cfg)
}
