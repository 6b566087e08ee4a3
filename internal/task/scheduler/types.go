package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "dartwatch/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Seoul"; empty means local time
}

// Job is one scheduled unit of work. The context is cancelled on Stop and
// when the schedule's timeout elapses.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID

	// guard outlives replacements of the same name, so a run started under
	// the old definition still blocks the new one.
	guard *runGuard
}

type runGuard struct {
	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	// ctx holds the Start context (context.Context); jobs derive from it.
	ctx    atomic.Value
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Runs    uint64
	Skipped uint64
}
