package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fibdrv/internal/config"
	"github.com/roach88/fibdrv/internal/device"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string

	// Config is populated by the root command before any subcommand runs.
	// Commands built directly (in tests) see the zero value and fall back
	// to config.Default().
	Config config.Config

	// Logger is configured from --verbose and log_level.
	Logger *slog.Logger

	// DeviceOptions override the device clock and session IDs (for testing).
	DeviceOptions []device.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fibdrv CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fibdrv",
		Short: "fibdrv - exclusive-access Fibonacci device",
		Long: `An in-process Fibonacci device with per-index timing statistics.

The device serves F(0) through F(92), admits one session at a time, and
exposes a "result" listing and a "reset" trigger through its control group.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd.ErrOrStderr())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .jsonc or .cue)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file with FIBDRV_* overrides")

	// Add subcommands
	cmd.AddCommand(NewReadCommand(opts))
	cmd.AddCommand(NewSeqCommand(opts))
	cmd.AddCommand(NewBenchCommand(opts))
	cmd.AddCommand(NewContendCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load resolves configuration (file, then dotenv, then environment) and
// sets up logging.
func (o *RootOptions) load(stderr io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.EnvFile != "" {
		if err := config.LoadDotEnv(o.EnvFile); err != nil {
			return WrapExitError(ExitCommandError, "failed to load env file", err)
		}
	}
	cfg, err = config.ApplyEnv(cfg, os.LookupEnv)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}
	o.Config = cfg

	// Configure logging based on verbose flag
	logLevel := cfg.Level()
	if o.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	o.Logger = slog.New(handler)
	slog.SetDefault(o.Logger)
	return nil
}

// settings returns the loaded configuration, or defaults when the root
// command did not run.
func (o *RootOptions) settings() config.Config {
	if o.Config.Name == "" {
		return config.Default()
	}
	return o.Config
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// formatter builds an OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
