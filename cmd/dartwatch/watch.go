package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dartwatch/internal/config"
	"dartwatch/internal/task/scheduler"
	"dartwatch/internal/watcher"
	logx "dartwatch/pkg/logx"
	"dartwatch/pkg/systemd"
)

const (
	defaultSchedule = "5m"
	checkJobName    = "dart-check"
	checkTimeout    = 2 * time.Minute
	stopTimeout     = 30 * time.Second
)

func newWatchCmd(opts *cliOptions) *cobra.Command {
	var skipFirst bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run checks on a schedule until interrupted",
		Long: `Run checks in-process on watch.schedule (default every 5m).

The config file is watched; a valid edit applies from the next check while
an invalid one is logged and ignored. Under systemd (Type=notify) readiness,
reloads and the watchdog are reported over sd_notify.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return watch(ctx, opts, !skipFirst)
		},
	}
	cmd.Flags().BoolVar(&skipFirst, "skip-first", false, "wait for the first scheduled tick instead of checking at start")
	return cmd
}

type daemon struct {
	mgr    *config.Manager
	logs   *logx.Service
	log    logx.Logger
	sched  *scheduler.Service
	notify *systemd.Notifier

	mu       sync.Mutex
	schedule string
}

func watch(ctx context.Context, opts *cliOptions, runAtStart bool) error {
	boot := logx.NewConsole(opts.getenv(config.EnvLogLevel))

	mgr := config.NewManager(opts.path(), opts.env())
	cfg, err := mgr.Load()
	if err != nil {
		boot.Error("config invalid", logx.Err(err))
		return err
	}

	svc, log := logx.New(logConfig(cfg))
	defer svc.Close()

	d := &daemon{
		mgr:    mgr,
		logs:   svc,
		log:    log,
		sched:  scheduler.New(scheduler.Config{Timezone: cfg.Watch.Timezone}, log.With(logx.String("comp", "scheduler"))),
		notify: systemd.NewNotifier(log.With(logx.String("comp", "systemd"))),
	}
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.OnChange(d.applyConfig)

	if err := d.setSchedule(cfg); err != nil {
		log.Error("bad schedule", logx.Err(err))
		return err
	}
	d.sched.Start(ctx)
	if runAtStart {
		go d.sched.RunNow(checkJobName)
	}

	go d.notify.RunWatchdog(ctx)
	go func() { _ = mgr.Watch(ctx) }()
	d.notify.Ready()
	log.Info("watching", logx.String("corp_code", cfg.DART.CorpCode), logx.String("mode", string(cfg.RunMode())))

	<-ctx.Done()
	d.notify.Stopping()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	d.sched.Stop(stopCtx)
	return nil
}

func (d *daemon) setSchedule(cfg *config.Config) error {
	spec := strings.TrimSpace(cfg.Watch.Schedule)
	if spec == "" {
		spec = defaultSchedule
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if spec == d.schedule {
		return nil
	}
	if _, err := d.sched.AddSchedule(checkJobName, spec, checkTimeout, d.check); err != nil {
		return err
	}
	d.schedule = spec
	d.log.Info("schedule set", logx.String("schedule", spec))
	return nil
}

func (d *daemon) applyConfig(cfg *config.Config) {
	d.notify.Reloading()
	defer d.notify.Ready()

	d.logs.Apply(logConfig(cfg))
	d.sched.Apply(scheduler.Config{Timezone: cfg.Watch.Timezone})
	if err := d.setSchedule(cfg); err != nil {
		d.log.Warn("schedule rejected; keeping previous", logx.Err(err))
	}
}

// check is one scheduled run against the current config. Errors are logged
// by the scheduler; the daemon keeps going.
func (d *daemon) check(ctx context.Context) error {
	cur := *d.mgr.Get()
	d.logs.ResetCapture()

	w, err := watcher.Build(&cur, d.log, watcher.WithLogs(d.logs.Captured))
	if err != nil {
		return err
	}
	defer w.Close()

	out, err := w.Run(ctx)
	if err != nil {
		d.notify.Status("last check failed at %s (%s)", time.Now().Format(time.RFC3339), out.Stage)
		return err
	}
	last := "none"
	if out.Disclosure != nil {
		last = out.Disclosure.ID
	}
	d.notify.Status("last check ok at %s, latest %s", time.Now().Format(time.RFC3339), last)
	return nil
}
