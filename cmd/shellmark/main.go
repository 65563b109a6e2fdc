// Package main implements shellmark, a shell wrapper with command-boundary
// tracking. It decodes shell-integration escape sequences to know where each
// command and its output live, keeps a navigable history, and can run
// commands synchronously and return exactly their output.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

// Global flags
var (
	debugMode     bool
	shellOverride string
	recordPath    string
	maxMarkers    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shellmark",
		Short: "Shell wrapper with command-boundary tracking",
		Long: `shellmark - shell wrapper with command-boundary tracking

Runs your shell inside a PTY and decodes the shell-integration escape
sequences (OSC 133 / 1337) it emits, so every command, its output and its
exit status are addressable. On exit it prints the session's command
history with exit codes.`,
		Example: `  # Wrap your shell
  shellmark

  # Wrap a specific shell and record the raw session
  shellmark --shell /bin/zsh --record session.raw

  # Run one command and print exactly its output
  shellmark exec "git status --short"

  # Browse the commands of a recorded session
  shellmark replay session.raw

  # Edit configuration
  shellmark config edit`,
		Version: version,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInteractive()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to a file")
	rootCmd.PersistentFlags().StringVar(&shellOverride, "shell", "", "Shell to spawn (default: from config or auto-detect)")
	rootCmd.Flags().StringVar(&recordPath, "record", "", "Record the raw session stream to a file")
	rootCmd.Flags().IntVar(&maxMarkers, "max-markers", 0, "Command markers to retain (default: from config or 200, min: 20, max: 2000)")

	var execTimeout time.Duration
	execCmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Run one command and print exactly its output",
		Long: `Run a command in a fresh shell and print exactly its output.

The command runs in a real interactive shell, so aliases, functions and
rc-file environment apply. The process exits with the command's exit code.`,
		Example: `  # Capture output despite a noisy rc file
  shellmark exec "ls -la"

  # Bound the wait for slow commands
  shellmark exec --timeout 5m "make test"`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runExec(context.Background(), args[0], execTimeout)
		},
	}
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Capture timeout (default: from config or 30s)")

	replayCmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Browse the commands of a recorded session",
		Long: `Browse a session recorded with --record.

The recording is re-run through the boundary decoder, so every command,
its output and its exit status are navigable even though the file is a
raw terminal stream.`,
		Example: `  shellmark --record session.raw
  shellmark replay session.raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runReplay(args[0])
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage shellmark configuration",
		Long:  `Manage the shellmark configuration file and settings`,
	}

	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print configuration file path",
		RunE: func(_ *cobra.Command, _ []string) error {
			return printConfigPath()
		},
	}

	configEditCmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit configuration in $EDITOR",
		Long: `Open the shellmark configuration file in your default editor

The editor is determined by checking $EDITOR, $VISUAL, or common editors
like vim, vi, nano, and emacs in that order.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return editConfigFile()
		},
	}

	configResetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults",
		RunE: func(_ *cobra.Command, _ []string) error {
			return resetConfigToDefaults()
		},
	}

	configCmd.AddCommand(configPathCmd, configEditCmd, configResetCmd)

	rootCmd.AddCommand(execCmd, replayCmd, configCmd)

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(fmt.Sprintf("%s\nCommit: %s\nBuilt: %s\nBy: %s", version, commit, date, builtBy)),
	); err != nil {
		os.Exit(1)
	}
}
