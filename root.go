package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/widgetctl/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var validOutputs = []string{outputTable, outputJSON, outputYAML}

// cliFlags holds the persistent flags bound on the root command.
type cliFlags struct {
	ConfigPath string
	APIURL     string
	Mock       bool
	JSON       bool
	Output     string
	Verbose    bool
	Quiet      bool
}

// CLIContext is everything a subcommand needs, resolved once in the root
// PersistentPreRunE and carried on the command context.
type CLIContext struct {
	Flags  cliFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext installed by the root pre-run. Every
// subcommand runs after it, so a missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("widgetctl: command context has no CLIContext")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered.
func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:     "widgetctl",
		Short:   "Chat widget admin CLI",
		Long:    "Manage users, roles, chats, AI models, widgets and notifications of a chat-widget tenant.",
		Version: version,
		// We print errors ourselves in main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, *flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.APIURL, "api-url", "", "admin API base URL")
	pf.BoolVar(&flags.Mock, "mock", false, "serve canned responses in-process instead of calling the API")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format (same as --output json)")
	pf.StringVarP(&flags.Output, "output", "o", outputTable, "output format: table, json or yaml")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newConfigCmd())

	for _, c := range newResourceCmds() {
		cmd.AddCommand(c)
	}

	return cmd
}

// newCLIContext resolves configuration through the override chain and
// builds the logger.
func newCLIContext(cmd *cobra.Command, flags cliFlags) (*CLIContext, error) {
	if flags.JSON {
		flags.Output = outputJSON
	}

	if !slices.Contains(validOutputs, flags.Output) {
		return nil, fmt.Errorf("invalid --output %q: must be one of table, json, yaml", flags.Output)
	}

	// Config loading logs before the configured level is known.
	bootLogger := buildLogger(nil, flags, cmd.ErrOrStderr())

	config.LoadDotEnv(bootLogger)

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	// Only pass flags the user explicitly set, so they don't mask env values.
	if cmd.Flags().Changed("api-url") {
		cli.APIURL = &flags.APIURL
	}

	if cmd.Flags().Changed("mock") {
		cli.Mock = &flags.Mock
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(bootLogger), cli, bootLogger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	if !isTerminal(out) || flags.Output != outputTable {
		color.NoColor = true
	}

	return &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: buildLogger(&resolved.Logging, flags, cmd.ErrOrStderr()),
		Out:    out,
		Err:    cmd.ErrOrStderr(),
	}, nil
}

// buildLogger creates an slog.Logger configured by the logging config and
// CLI flags. The config level is the baseline; --verbose and --quiet
// override it. Format "auto" picks text on a terminal and JSON otherwise.
func buildLogger(lc *config.LoggingConfig, flags cliFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if lc != nil {
		format = lc.LogFormat

		switch lc.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
