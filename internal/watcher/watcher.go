package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dartwatch/internal/config"
	"dartwatch/internal/dart"
	"dartwatch/internal/storage"
	kit "dartwatch/internal/transport"
	"dartwatch/internal/transport/telegram"
	logx "dartwatch/pkg/logx"
)

// Source yields the newest disclosure, or nil when there is none.
type Source interface {
	FetchLatest(ctx context.Context) (*dart.Disclosure, error)
}

// chunkSender is implemented by notifiers that can pace multi-part sends.
type chunkSender interface {
	SendChunked(ctx context.Context, text string, maxLen int) (int, error)
}

type Deps struct {
	Source   Source
	Notifier kit.Sender
	Store    storage.Store

	// Logs returns the captured log of the current run (test mode dumps).
	Logs func() string

	Now      func() time.Time
	NewRunID func() string
}

// Watcher runs the check pipeline. It is not safe for concurrent Run calls;
// the daemon serializes runs.
type Watcher struct {
	cfg  *config.Config
	deps Deps
	log  logx.Logger
}

// New validates cfg first; a *config.ConfigError means nothing was contacted.
func New(cfg *config.Config, deps Deps, log logx.Logger) (*Watcher, error) {
	if cfg == nil {
		return nil, &config.ConfigError{Missing: []string{"config"}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Notifier == nil || deps.Store == nil {
		return nil, errors.New("watcher: source, notifier and store are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{cfg: cfg, deps: deps, log: log}, nil
}

// Close releases the store.
func (w *Watcher) Close() error { return w.deps.Store.Close() }

// Run performs one check. The returned error is nil exactly when
// Outcome.Stage is StageDone.
//
// A new disclosure is persisted before it is announced: if delivery then
// fails, the run errors but the disclosure is not announced again later.
func (w *Watcher) Run(ctx context.Context) (out Outcome, err error) {
	start := w.deps.Now()
	out = Outcome{RunID: w.deps.NewRunID()}
	log := w.log.With(logx.String("run_id", out.RunID))
	out.enter(StageStart)
	out.enter(StageEnvCheck)

	defer func() {
		out.Took = w.deps.Now().Sub(start)
		w.record(ctx, log, start, out, err)
	}()

	st, lerr := w.deps.Store.Load(ctx)
	if lerr != nil {
		// Unreadable state is treated as a first run.
		log.Warn("state unreadable; starting fresh", logx.Err(lerr))
		st = storage.State{}
	}
	out.enter(StageStateLoaded)
	log.Debug("state loaded", logx.String("last_rcp_no", st.Last()))

	latest, ferr := w.deps.Source.FetchLatest(ctx)
	out.enter(StageFetched)
	if ferr != nil {
		return w.fail(ctx, log, out, fmt.Errorf("fetch latest: %w", ferr), true)
	}
	out.Disclosure = latest

	if latest == nil || st.Seen(latest.ID) {
		out.enter(StageNoNewDisclosure)
		return w.nothingNew(ctx, log, out)
	}

	out.enter(StageNewDisclosureFound)
	out.New = true
	log.Info("new disclosure",
		logx.String("rcp_no", latest.ID),
		logx.String("report", latest.Title),
		logx.String("previous", st.Last()),
	)

	if err := w.deps.Store.Save(ctx, st.WithLast(latest.ID)); err != nil {
		return w.fail(ctx, log, out, fmt.Errorf("save state: %w", err), true)
	}
	out.Persisted = true

	res, serr := w.deps.Notifier.Send(ctx, NewDisclosureMessage(*latest))
	if serr == nil {
		serr = telegram.CheckDelivery(res)
	}
	if serr != nil {
		return w.fail(ctx, log, out, fmt.Errorf("announce %s: %w", latest.ID, serr), false)
	}
	out.Notified = true
	out.enter(StageNotifiedAndPersisted)
	out.enter(StageDone)
	log.Info("disclosure announced", logx.String("rcp_no", latest.ID))
	return out, nil
}

func (w *Watcher) nothingNew(ctx context.Context, log logx.Logger, out Outcome) (Outcome, error) {
	if out.Disclosure == nil {
		log.Info("no disclosures listed")
	} else {
		log.Info("no new disclosure", logx.String("rcp_no", out.Disclosure.ID))
	}
	if w.cfg.RunMode() != config.ModeTest {
		out.enter(StageDone)
		return out, nil
	}

	text := heartbeatNothingNew
	if out.Disclosure == nil {
		text = heartbeatNoDisclosures
	}
	res, err := w.deps.Notifier.Send(ctx, text)
	if err == nil {
		err = telegram.CheckDelivery(res)
	}
	if err != nil {
		return w.fail(ctx, log, out, fmt.Errorf("heartbeat: %w", err), false)
	}
	out.Notified = true
	out.Heartbeat = true
	out.enter(StageNotified)
	log.Info("heartbeat sent")

	if w.cfg.Diagnostics.IncludeLogs && w.deps.Logs != nil {
		w.dumpLogs(ctx, log)
	}
	out.enter(StageDone)
	return out, nil
}

// dumpLogs is best effort; the heartbeat already proved the channel works.
func (w *Watcher) dumpLogs(ctx context.Context, log logx.Logger) {
	logs := w.deps.Logs()
	if logs == "" {
		return
	}
	text := logDumpHeader + "\n" + logs
	maxLen := w.cfg.MaxMessageChars()

	if cs, ok := w.deps.Notifier.(chunkSender); ok {
		if n, err := cs.SendChunked(ctx, text, maxLen); err != nil {
			log.Warn("log dump incomplete", logx.Int("sent", n), logx.Err(err))
		}
		return
	}
	for i, chunk := range telegram.Chunk(text, maxLen) {
		res, err := w.deps.Notifier.Send(ctx, chunk)
		if err == nil {
			err = telegram.CheckDelivery(res)
		}
		if err != nil {
			log.Warn("log dump incomplete", logx.Int("sent", i), logx.Err(err))
			return
		}
	}
}

// fail ends the run in StageErrored. When report is set and enabled, a
// summary goes to the chat first; delivery problems there are only logged.
func (w *Watcher) fail(ctx context.Context, log logx.Logger, out Outcome, err error, report bool) (Outcome, error) {
	out.enter(StageErrored)
	log.Error("run failed", logx.Err(err))

	if report && w.cfg.ReportErrors() {
		res, serr := w.deps.Notifier.Send(ctx, FailureMessage(w.cfg.DART.CorpCode, err))
		if serr == nil {
			serr = telegram.CheckDelivery(res)
		}
		if serr != nil {
			log.Warn("failure report not delivered", logx.Err(serr))
		}
	}
	return out, err
}

func (w *Watcher) record(ctx context.Context, log logx.Logger, start time.Time, out Outcome, runErr error) {
	rec := storage.RunRecord{
		RunID:     out.RunID,
		StartedAt: start,
		Mode:      string(w.cfg.RunMode()),
		Stage:     string(out.Stage),
		Notified:  out.Notified,
		TookMS:    out.Took.Milliseconds(),
	}
	if out.Disclosure != nil {
		rec.RcpNo = out.Disclosure.ID
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := w.deps.Store.AppendRun(ctx, rec); err != nil {
		log.Warn("run journal append failed", logx.Err(err))
	}
}
