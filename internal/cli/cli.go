// Package cli defines the voicify-shell command tree.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbright/voicify-shell/internal/session"
)

// Exit codes returned by the binary.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath string
}

// Actions implements the behavior behind each command.
type Actions interface {
	Run(ctx context.Context, opts Options) error
	Trigger(ctx context.Context, opts Options, name string) error
	Status(ctx context.Context, opts Options) error
	Monitor(ctx context.Context, opts Options) error
	Doctor(ctx context.Context, opts Options) error
	Version() string
}

// RuntimeError marks a failure raised by a command's action, as opposed to
// a usage error detected while parsing the command line.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string { return e.Err.Error() }

func (e *RuntimeError) Unwrap() error { return e.Err }

// ExitCode maps an Execute result to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var runtimeErr *RuntimeError
	if errors.As(err, &runtimeErr) {
		return ExitFailure
	}
	return ExitUsage
}

// NewRootCommand builds the command tree around actions.
func NewRootCommand(actions Actions) *cobra.Command {
	var opts Options

	root := &cobra.Command{
		Use:           "voicify-shell",
		Short:         "Desktop session client for the voicify dictation daemon",
		Version:       actions.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"config file path (default: $XDG_CONFIG_HOME/voicify-shell/config.jsonc)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Own the dictation session and serve triggers",
			Args:  cobra.NoArgs,
			RunE: action(func(cmd *cobra.Command, _ []string) error {
				return actions.Run(cmd.Context(), opts)
			}),
		},
		&cobra.Command{
			Use:       "trigger <name>",
			Short:     "Send a trigger to the running session owner",
			Long:      triggerHelp(),
			Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
			ValidArgs: session.Triggers,
			RunE: action(func(cmd *cobra.Command, args []string) error {
				return actions.Trigger(cmd.Context(), opts, args[0])
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current session state",
			Args:  cobra.NoArgs,
			RunE: action(func(cmd *cobra.Command, _ []string) error {
				return actions.Status(cmd.Context(), opts)
			}),
		},
		&cobra.Command{
			Use:   "monitor",
			Short: "Watch session state, partial text, and input level",
			Args:  cobra.NoArgs,
			RunE: action(func(cmd *cobra.Command, _ []string) error {
				return actions.Monitor(cmd.Context(), opts)
			}),
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Run configuration and environment checks",
			Args:  cobra.NoArgs,
			RunE: action(func(cmd *cobra.Command, _ []string) error {
				return actions.Doctor(cmd.Context(), opts)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), actions.Version())
			},
		},
	)

	return root
}

func action(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &RuntimeError{Err: err}
		}
		return nil
	}
}

func triggerHelp() string {
	return fmt.Sprintf(`Send a trigger to the running session owner.

Triggers:
  %-22s start or stop realtime dictation
  %-22s start or stop a recording pasted after transcription
  %-22s start or stop a recording routed by the daemon
  %-22s cancel the active recording`,
		session.TriggerRealtime,
		session.TriggerPostAutoPaste,
		session.TriggerPostRouter,
		session.TriggerCancel,
	)
}
