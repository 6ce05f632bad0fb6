package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperclay/sitesync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIKey     string
	flagSyncFolder string
	flagServerURL  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that load and validate configuration
// themselves (or don't need it at all). Commands without this annotation go
// through the standard three-layer resolution in PersistentPreRunE.
const skipConfigAnnotation = "skipConfig"

// GlobalFlags carries the subset of persistent flags that affect output
// formatting, independent of config resolution.
type GlobalFlags struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext bundles resolved config, logger, and output flags. Created
// once in PersistentPreRunE and threaded through RunE handlers via the
// command's context.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  GlobalFlags
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
// Returns nil if no config was loaded (e.g. commands that skip it).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. RunE handlers that require config (no skipConfigAnnotation) use
// this instead of the tolerant form.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure the command " +
			"does not skip config loading or explicitly loads config in its RunE")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sitesync",
		Short:   "Keep a local folder of site documents in sync with the remote service",
		Long:    "sitesync watches a local folder of HTML site documents and keeps it bidirectionally in sync with a remote server over HTTP.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key (overrides SITESYNC_API_KEY)")
	cmd.PersistentFlags().StringVar(&flagSyncFolder, "sync-folder", "", "local folder to sync")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server-url", "", "remote server base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the three-layer
// override chain (CLI > env > file) and stores the result in the command's
// context for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cfgPath := flagConfigPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	env := config.ReadEnvOverrides(logger)
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		APIKey:     flagAPIKey,
		SyncFolder: flagSyncFolder,
		ServerURL:  flagServerURL,
	}

	resolved, err := config.Resolve(cfg, env, cli, logger)
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	finalLogger := buildLogger(resolved)
	cc := &CLIContext{
		Cfg:    resolved,
		Logger: finalLogger,
		Flags:  GlobalFlags{JSON: flagJSON, Verbose: flagVerbose, Quiet: flagQuiet},
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level provides the baseline; --verbose and --quiet
// override it because CLI flags always win. The flags are mutually
// exclusive (enforced by Cobra).
func buildLogger(cfg *config.Resolved) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
