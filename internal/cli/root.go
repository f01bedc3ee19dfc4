// Package cli implements ddtctl, the operator tool for delivery-note counters.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"commesse/internal/app"
	"commesse/internal/config"
	appctx "commesse/internal/core/context"
	"commesse/internal/core/numerator"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Opener wires the engine for one command.
type Opener func(ctx context.Context) (*app.App, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
	Open   Opener
}

// DefaultOpener loads configuration from the environment with quiet logging.
func DefaultOpener(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "load configuration", Err: err}
	}
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

// NewRootCommand creates the ddtctl root command.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = DefaultOpener
	}
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "ddtctl",
		Short: "Inspect and repair delivery-note (DDT) counters",
		Long: `ddtctl talks to the same counters, locks and order folders as the API server.

Every mutation takes the same file locks, so it is safe to run next to a live server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newPeekCommand(opts))
	cmd.AddCommand(newAdvanceCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newGenerateCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// withApp opens the engine, runs fn with a CLI-origin context and closes it.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := appctx.WithTrace(cmd.Context(), appctx.NewTraceContext())
	ctx = appctx.WithOrigin(ctx, appctx.OriginCLI)

	a, err := o.Open(ctx)
	if err != nil {
		return o.formatter(cmd).Error(err)
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func parseClasses(args []string) ([]numerator.Class, error) {
	if len(args) == 0 {
		return numerator.Classes(), nil
	}
	out := make([]numerator.Class, 0, len(args))
	for _, a := range args {
		c, err := numerator.ParseClass(a)
		if err != nil {
			return nil, &ExitError{Code: ExitCommandError, Message: "bad class", Err: err}
		}
		out = append(out, c)
	}
	return out, nil
}

func parseClass(s string) (numerator.Class, error) {
	c, err := numerator.ParseClass(s)
	if err != nil {
		return "", &ExitError{Code: ExitCommandError, Message: "bad class", Err: err}
	}
	return c, nil
}
