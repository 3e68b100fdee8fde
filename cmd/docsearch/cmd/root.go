// Package cmd provides the CLI commands for docsearch.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/embed"
	errs "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/logging"
	"github.com/Aman-CERP/docsearch/internal/profiling"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/pkg/version"
)

// annotationLogStderr marks commands whose logs go to stderr. Other
// commands own the terminal and log to the file only.
const annotationLogStderr = "log-stderr"

// Persistent flags and the state built from them in PersistentPreRunE.
var (
	debugMode      bool
	logLevel       string
	configDir      string
	loadedConfig   *config.Config
	configErr      error
	loggingCleanup func()

	profileOpts profiling.Options
	profiler    *profiling.Profiler
)

// NewRootCmd creates the root command for the docsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsearch",
		Short: "Semantic search over local documentation, served over MCP",
		Long: `docsearch indexes a tree of documentation sections into a vector index
and serves a search_docs tool to MCP clients over stdio.

Build the index once with 'docsearch index', then point your MCP client
at 'docsearch serve'.`,
		Version:            version.Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  startLoggingAndProfiling,
		PersistentPostRunE: stopLoggingAndProfiling,
	}

	cmd.SetVersionTemplate("docsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.docsearch/logs/")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "User config directory (default: $XDG_CONFIG_HOME/docsearch)")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure in CLI form.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprint(os.Stderr, errs.FormatForCLI(err))
		return err
	}
	return nil
}

// startLoggingAndProfiling loads the configuration, installs the default
// logger and starts any requested profiles. A configuration error is kept
// for the commands that need the config; logging then falls back to defaults.
func startLoggingAndProfiling(cmd *cobra.Command, _ []string) error {
	loadedConfig, configErr = config.Load(config.LoadOptions{ConfigDir: configDir})

	logCfg := logging.DefaultConfig()
	if loadedConfig != nil {
		logCfg.Level = loadedConfig.Logging.Level
		logCfg.FilePath = loadedConfig.Logging.File
	}
	if debugMode {
		logCfg.Level = "debug"
		if logCfg.FilePath == "" {
			logCfg.FilePath = logging.DefaultLogPath()
		}
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}

	if cmd.Annotations[annotationLogStderr] == "true" {
		logCfg.Stderr = cmd.ErrOrStderr()
	} else {
		logCfg.Stderr = io.Discard
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if debugMode {
		slog.Debug("debug logging enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version),
			slog.String("command", cmd.Name()))
	}

	if profileOpts.Enabled() {
		if profiler, err = profiling.Start(profileOpts); err != nil {
			return err
		}
	}
	return nil
}

func stopLoggingAndProfiling(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		err = profiler.Stop()
		profiler = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// requireConfig returns the configuration loaded for this invocation.
func requireConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	if loadedConfig == nil {
		return config.NewConfig(), nil
	}
	return loadedConfig, nil
}

// signalContext cancels on SIGINT and SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newEmbedder builds the configured provider client.
func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, errs.ConfigError(err.Error(), err)
	}
	return embed.New(ctx, embed.Options{
		Provider:      provider,
		Model:         cfg.Embeddings.Model,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		Timeout:       cfg.EmbedTimeout(),
		OpenAIKey:     cfg.Embeddings.OpenAIKey,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		GeminiKey:     cfg.Embeddings.GeminiKey,
	})
}

func hnswConfig(cfg *config.Config) store.HNSWConfig {
	return store.HNSWConfig{M: cfg.Index.HNSWM, EfSearch: cfg.Index.HNSWEfSearch}
}
