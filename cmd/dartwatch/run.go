package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dartwatch/internal/config"
	"dartwatch/internal/watcher"
	logx "dartwatch/pkg/logx"
)

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check once and exit (0 on success, 1 on error)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runOnce(ctx, opts)
		},
	}
}

func runOnce(ctx context.Context, opts *cliOptions) error {
	boot := logx.NewConsole(opts.getenv(config.EnvLogLevel))

	cfg, err := config.Load(opts.path(), opts.env())
	if err != nil {
		boot.Error("config load failed", logx.Err(err))
		return err
	}

	svc, log := logx.New(logConfig(cfg))
	defer svc.Close()

	w, err := watcher.Build(cfg, log, watcher.WithLogs(svc.Captured))
	if err != nil {
		if config.IsConfigError(err) {
			log.Error("config invalid", logx.Err(err))
		} else {
			log.Error("setup failed", logx.Err(err))
		}
		return err
	}
	defer w.Close()

	out, err := w.Run(ctx)
	log.Info("run finished",
		logx.String("run_id", out.RunID),
		logx.String("stage", string(out.Stage)),
		logx.Bool("notified", out.Notified),
		logx.Duration("took", out.Took),
	)
	return err
}
