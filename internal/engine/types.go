package engine

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"courtbot/internal/store"
)

type Config struct {
	// Workers bounds concurrent fire executions (default 10).
	Workers int
	// QueueSize bounds pending fires between the timer and the pool (default 256).
	QueueSize int
	// Timezone is the fixed IANA zone all triggers evaluate in (default Asia/Kolkata).
	Timezone string
	// FireTimeout bounds one fire's pipeline, snapshot fetch through delivery
	// retries included (default 2m).
	FireTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
	if c.FireTimeout <= 0 {
		c.FireTimeout = 2 * time.Minute
	}
	return c
}

// runState is shared between cron occurrences of one job id so overlapping
// fires can be detected and skipped.
type runState struct {
	mu      sync.Mutex
	running bool
}

func (r *runState) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *runState) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// jobEntry is the in-memory registration for one Active job.
type jobEntry struct {
	desc    store.JobDescriptor
	entryID cron.EntryID // 0 while the cron runner is not started
	state   *runState
}

// fire is one queued occurrence of a job.
type fire struct {
	runID  string
	jobID  string
	userID string
	state  *runState
}

// HistoryItem records one executed fire for introspection.
type HistoryItem struct {
	RunID    string
	JobID    string
	Started  time.Time
	Duration time.Duration
	Matched  int
	Error    string
}
