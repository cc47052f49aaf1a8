package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"courtbot/internal/availability"
	"courtbot/internal/notifier"
	"courtbot/internal/player"
	"courtbot/internal/schedule"
	"courtbot/internal/store"
	"courtbot/pkg/logx"
)

// JobID derives the deterministic job identifier for a player identity. One
// identity can therefore never own more than one job.
func JobID(userID string) string { return userID + "_notification" }

type Engine struct {
	cfg Config
	log logx.Logger
	loc *time.Location

	jobs    store.JobStore
	players player.Source
	slots   availability.Source
	notif   *notifier.Service

	// mu serializes job mutations (schedule/cancel/rearm) and guards the
	// cron runner plus the entries map. Mutations for the same job id are
	// thereby serialized; last writer wins, which is fine since every write
	// fully specifies the resulting trigger.
	mu      sync.Mutex
	parser  cron.Parser
	c       *cron.Cron
	entries map[string]*jobEntry

	queue     chan fire
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, jobs store.JobStore, players player.Source, slots availability.Source, notif *notifier.Service, log logx.Logger) *Engine {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:     cfg,
		log:     log,
		jobs:    jobs,
		players: players,
		slots:   slots,
		notif:   notif,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		entries: map[string]*jobEntry{},
	}
}

// Start loads persisted job descriptors, rearms their triggers, and launches
// the worker pool. Safe to call once per Engine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopCh != nil {
		return nil
	}

	loc, err := time.LoadLocation(e.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("engine timezone %q: %w", e.cfg.Timezone, err)
	}
	e.loc = loc

	e.stopCh = make(chan struct{})
	e.runCtx, e.runCancel = context.WithCancel(ctx)
	e.queue = make(chan fire, e.cfg.QueueSize)
	e.c = cron.New(cron.WithParser(e.parser), cron.WithLocation(loc))

	// Startup recovery: rearm every persisted descriptor. A following
	// ReconcileAll will correct any drift against the preference source.
	descs, err := e.jobs.Jobs(ctx)
	if err != nil {
		return err
	}
	for _, d := range descs {
		if d.Version != store.DescriptorVersion {
			e.log.Warn("skipping job with unknown descriptor version", logx.String("job_id", d.JobID), logx.Int("version", d.Version))
			continue
		}
		if err := e.armLocked(d); err != nil {
			e.log.Warn("failed to rearm persisted job", logx.String("job_id", d.JobID), logx.Err(err))
		}
	}

	workers := e.cfg.Workers
	runCtx := e.runCtx
	stopCh := e.stopCh
	queue := e.queue
	e.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer e.workerWG.Done()
			e.worker(runCtx, stopCh, queue, idx)
		}()
	}

	e.c.Start()
	e.log.Info("engine started",
		logx.Int("workers", workers),
		logx.String("tz", loc.String()),
		logx.Int("jobs", len(e.entries)))
	return nil
}

// Stop halts the timer and waits for in-flight fires until ctx expires.
// An in-flight fire that began before Stop completes to its normal end
// unless the fire timeout or run context cuts it short.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	stopCh := e.stopCh
	c := e.c
	e.stopCh = nil
	e.c = nil
	e.queue = nil
	for _, ent := range e.entries {
		ent.entryID = 0
	}
	e.mu.Unlock()

	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if e.runCancel != nil {
			e.runCancel()
		}
		<-done
	}
	if e.runCancel != nil {
		e.runCancel()
	}
	e.log.Info("engine stopped")
}

// Schedule resolves the player's cadence and time-of-day, persists the job
// descriptor, and installs the trigger — atomically replacing any prior
// trigger under the same job id. On resolver failure no partial job is
// installed; on store failure the previous trigger stays as it was.
func (e *Engine) Schedule(ctx context.Context, p player.Preference) (string, error) {
	userID := player.NormalizeIdentity(p.ID)
	if userID == "" {
		return "", fmt.Errorf("empty player identity")
	}

	days, err := schedule.DaysForFrequency(p.Frequency)
	if err != nil {
		return "", err
	}
	tod, err := schedule.ParseTimeOfDay(p.NotifyTime)
	if err != nil {
		return "", err
	}

	desc := store.JobDescriptor{
		JobID:   JobID(userID),
		Version: store.DescriptorVersion,
		UserID:  userID,
		Days:    schedule.DaysMask(days),
		Hour:    tod.Hour,
		Minute:  tod.Minute,
	}

	if err := e.jobs.PutJob(ctx, desc); err != nil {
		return "", err
	}

	e.mu.Lock()
	err = e.armLocked(desc)
	e.mu.Unlock()
	if err != nil {
		return "", err
	}

	e.log.Info("job scheduled",
		logx.String("job_id", desc.JobID),
		logx.String("days", schedule.CronDOW(days)),
		logx.String("at", tod.String()))
	return desc.JobID, nil
}

// Cancel removes the identity's job from the store and the timer. Absence is
// not an error; an in-flight fire is unaffected.
func (e *Engine) Cancel(ctx context.Context, userID string) error {
	userID = player.NormalizeIdentity(userID)
	jobID := JobID(userID)

	if err := e.jobs.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	e.mu.Lock()
	if ent, ok := e.entries[jobID]; ok {
		if e.c != nil && ent.entryID != 0 {
			e.c.Remove(ent.entryID)
		}
		delete(e.entries, jobID)
		e.log.Info("job cancelled", logx.String("job_id", jobID))
	}
	e.mu.Unlock()
	return nil
}

// ReconcileAll brings the job set in line with the current preference
// snapshot. Idempotent; a record with missing fields or an unresolvable
// cadence/time is skipped with a warning and never blocks the rest.
func (e *Engine) ReconcileAll(ctx context.Context) error {
	players, err := e.players.Players(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	scheduled, skipped := 0, 0
	for _, p := range players {
		if err := p.Validate(); err != nil {
			skipped++
			e.log.Warn("reconcile skipping player", logx.String("player", p.ID), logx.Err(err))
			continue
		}
		if _, err := e.Schedule(ctx, p); err != nil {
			skipped++
			e.log.Warn("reconcile skipping player", logx.String("player", p.ID), logx.Err(err))
			continue
		}
		scheduled++
	}
	e.log.Info("reconcile complete", logx.Int("scheduled", scheduled), logx.Int("skipped", skipped))
	return nil
}

// ActiveJobs returns the ids of currently installed triggers.
func (e *Engine) ActiveJobs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.entries))
	for id := range e.entries {
		out = append(out, id)
	}
	return out
}

// History returns a copy of recent fire records.
func (e *Engine) History() []HistoryItem {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	return append([]HistoryItem(nil), e.history...)
}

// armLocked installs or replaces the in-memory trigger for a descriptor.
// Call with e.mu held. Replace keeps the runState so an in-flight fire still
// suppresses overlap for the new registration.
func (e *Engine) armLocked(d store.JobDescriptor) error {
	prev, existed := e.entries[d.JobID]
	if existed && e.c != nil && prev.entryID != 0 {
		e.c.Remove(prev.entryID)
	}

	ent := &jobEntry{desc: d, state: &runState{}}
	if existed {
		ent.state = prev.state
	}
	e.entries[d.JobID] = ent

	if e.c == nil {
		// Not started yet; Start() will register from the store.
		return nil
	}

	spec := cronSpec(d)
	eid, err := e.c.AddFunc(spec, func() { e.onFire(ent) })
	if err != nil {
		delete(e.entries, d.JobID)
		return fmt.Errorf("register trigger %q: %w", spec, err)
	}
	ent.entryID = eid
	return nil
}

func cronSpec(d store.JobDescriptor) string {
	return fmt.Sprintf("%d %d * * %s", d.Minute, d.Hour, schedule.CronDOW(schedule.DaysFromMask(d.Days)))
}
