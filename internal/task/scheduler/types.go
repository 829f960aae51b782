// Package scheduler turns triggers into engine tasks: named one-shot timers
// and cron schedules. It never runs jobs itself.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"airwatch/internal/task/engine"
	"airwatch/pkg/logx"
)

type Config struct {
	// Timezone is an IANA name used for cron specs. Empty means Local.
	Timezone string
}

type Job func(ctx context.Context) error

type cronDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	opt     engine.TaskOptions
	entryID cron.EntryID
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
	timer   *time.Timer
}

// Enqueuer is the part of the task engine the scheduler feeds.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type Service struct {
	log    logx.Logger
	engine Enqueuer
	parser cron.Parser

	mu   sync.Mutex
	cfg  Config
	loc  *time.Location
	c    *cron.Cron
	defs map[string]*cronDef

	tmu  sync.Mutex
	once map[string]*onceDef
	vers map[string]uint64
}

type ScheduleInfo struct {
	Name string    `json:"name"`
	Kind string    `json:"kind"`
	Spec string    `json:"spec,omitempty"`
	Next time.Time `json:"next"`
}
