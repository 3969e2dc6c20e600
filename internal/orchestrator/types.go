package orchestrator

import (
	"context"
	"time"
)

// Pass is one run of a subsystem.
type Pass func(ctx context.Context) error

// Mode selects how a subsystem pass is executed.
type Mode string

const (
	// ModeTx runs the pass inside a repository transaction: a failure rolls
	// back every write the pass made.
	ModeTx Mode = "tx"
	// ModeBackground runs the pass on its own goroutine, at most one at a
	// time. The pass is responsible for its own reads.
	ModeBackground Mode = "background"
)

// Subsystem is a pass run on a fixed world-time interval. A zero interval
// runs the pass on every tick.
type Subsystem struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Mode     Mode          `json:"mode"`
	Run      Pass          `json:"-"`
}

// Status reports the schedule and health of one subsystem.
type Status struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Mode      Mode          `json:"mode"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
	Running   bool          `json:"running"`
}
