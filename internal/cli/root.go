// Package cli defines the liaison command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FranksOps/liaison/internal/app"
	"github.com/FranksOps/liaison/internal/config"
	"github.com/FranksOps/liaison/internal/logging"
	"github.com/FranksOps/liaison/internal/metrics"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "liaison",
		Short:         "Find LinkedIn posts on a topic and draft or post comments on them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a liaison.yaml config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format override (json, text)")

	root.AddCommand(
		newServeCommand(g),
		newDiscoverCommand(g),
		newBatchCommand(g),
		newReplyCommand(g),
		newAuthCommand(g),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (g *globalFlags) app(cmd *cobra.Command) (*app.App, error) {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, logger)
}

// startMetrics serves /metrics for the length of a one-shot command when
// an address is set.
func startMetrics(cmd *cobra.Command, addr string, a *app.App) func() {
	if addr == "" {
		addr = a.Config.Metrics.Addr
	}
	if addr == "" {
		return func() {}
	}
	srv := metrics.Start(addr, a.Logger)
	return func() {
		if err := srv.Stop(context.WithoutCancel(cmd.Context())); err != nil {
			a.Logger.Warn("metrics server shutdown", "err", err)
		}
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "liaison "+Version)
			return nil
		},
	}
}
