package watcher

import (
	"time"

	"dartwatch/internal/dart"
)

// Stage names a step of a run. A run walks
//
//	start → env_check → state_loaded → fetched →
//	  no_new_disclosure | new_disclosure_found →
//	  [notified | notified_and_persisted] → done
//
// and may jump to errored from env_check, fetched or a notify step.
type Stage string

const (
	StageStart                Stage = "start"
	StageEnvCheck             Stage = "env_check"
	StageStateLoaded          Stage = "state_loaded"
	StageFetched              Stage = "fetched"
	StageNoNewDisclosure      Stage = "no_new_disclosure"
	StageNewDisclosureFound   Stage = "new_disclosure_found"
	StageNotified             Stage = "notified"
	StageNotifiedAndPersisted Stage = "notified_and_persisted"
	StageDone                 Stage = "done"
	StageErrored              Stage = "errored"
)

// Outcome describes a finished run.
type Outcome struct {
	RunID      string
	Stage      Stage   // done or errored
	Path       []Stage // every stage entered, in order
	Disclosure *dart.Disclosure
	// New is set when the fetched disclosure differed from the stored one.
	New       bool
	Persisted bool
	// Notified is set when a message (announcement or heartbeat) was delivered.
	Notified  bool
	Heartbeat bool
	Took      time.Duration
}

func (o *Outcome) enter(s Stage) {
	o.Stage = s
	o.Path = append(o.Path, s)
}

// Passed reports whether the run entered s.
func (o Outcome) Passed(s Stage) bool {
	for _, p := range o.Path {
		if p == s {
			return true
		}
	}
	return false
}
