// Package broadcast sends one text to many chats as a tracked job, used by
// the /announce command.
package broadcast

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"airwatch/internal/runtime/supervisor"
	"airwatch/internal/transport"
	"airwatch/pkg/logx"
)

type Config struct {
	Workers    int
	RatePerSec int
	RetryMax   int
}

type job struct {
	id      string
	name    string
	targets []transport.ChatTarget
	text    string
	opt     *transport.SendOptions
}

type JobStatus struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Total     int                    `json:"total"`
	Done      int                    `json:"done"`
	Failed    int                    `json:"failed"`
	Failures  []transport.ChatTarget `json:"failures,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	StartedAt time.Time              `json:"started_at,omitzero"`
	DoneAt    time.Time              `json:"done_at,omitzero"`
	Running   bool                   `json:"running"`
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	sender  transport.Sender
	log     logx.Logger
	limiter *rate.Limiter
	queue   chan job
	sup     *supervisor.Supervisor

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	statusMax int
	statusTTL time.Duration
}
