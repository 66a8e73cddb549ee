package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/portal-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIHost    string
	flagStorage    string
	flagLang       string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// out renders sizes and counts in the language picked by --lang.
var out = mustLocale(defaultLang)

// newHTTPClient returns an HTTP client bounded by the configured timeout.
func newHTTPClient() *http.Client {
	timeout := 5 * time.Minute
	if resolvedCfg != nil && resolvedCfg.Timeout > 0 {
		timeout = resolvedCfg.Timeout
	}

	return &http.Client{Timeout: timeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portal-go",
		Short:   "File-processing portal CLI client",
		Long:    "Upload spreadsheets to the institutional processing portal and read back their reports.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loc, err := newLocale(flagLang)
			if err != nil {
				return err
			}

			out = loc

			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIHost, "api-host", "", "backend base URL (e.g., https://portal.example.kz)")
	cmd.PersistentFlags().StringVar(&flagStorage, "storage", "", "credential storage backend (file or sqlite)")
	cmd.PersistentFlags().StringVar(&flagLang, "lang", defaultLang, "output language: en, ru, or kk")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newSummaryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig loads .env, then resolves the effective configuration from the
// four-layer override chain into resolvedCfg.
func loadConfig() error {
	if err := config.LoadDotEnv(""); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		APIHost:    flagAPIHost,
		Storage:    flagStorage,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// statusf prints a status message to stderr unless --quiet is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
