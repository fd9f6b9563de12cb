package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/app"
	"github.com/ternarybob/tenor/internal/common"
)

// Exit codes
const (
	exitError         = 1
	exitReportsFailed = 4
)

// exitCodeError carries a non-default process exit code out of a command
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string {
	return e.msg
}

var (
	// Command-line flags
	configFiles []string
	serverPort  int
	serverHost  string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "tenor",
	Short:         "Financial filing narrative sentiment pipeline",
	Long:          `Tenor extracts narrative sections from 10-K, 10-Q and 8-K filings, scores their sentiment, and tracks how the narrative shifts between periods.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil,
		"Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")

	rootCmd.AddCommand(
		serveCmd,
		processCmd,
		batchCmd,
		compareCmd,
		sweepCmd,
		trendsCmd,
		exportCmd,
		statusCmd,
		versionCmd,
	)
}

func main() {
	common.InstallCrashHandler("logs")
	defer common.RecoverWithCrashFile()

	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.msg)
		os.Exit(exitErr.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitError)
}

// loadConfig runs the startup sequence: defaults -> files -> env -> flags, then the logger
func loadConfig() error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("tenor.toml"); err == nil {
			configFiles = append(configFiles, "tenor.toml")
		} else if _, err := os.Stat("deployments/local/tenor.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/tenor.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		if len(configFiles) == 0 {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return fmt.Errorf("failed to load configuration files %v: %w", configFiles, err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost)
	logger = common.SetupLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("storage", config.Storage.Backend).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")
	return nil
}

// withApp initializes the application for a one-shot command and cancels the
// command context on SIGINT/SIGTERM
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, application)
}
