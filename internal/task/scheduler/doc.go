// Package scheduler triggers named jobs on cron or interval schedules.
//
// Jobs run on robfig/cron goroutines. A job that is still running when its
// next trigger fires is skipped, never queued.
package scheduler
