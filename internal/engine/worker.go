package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"courtbot/internal/matcher"
	"courtbot/internal/notifier"
	"courtbot/internal/schedule"
	"courtbot/internal/transport"
	"courtbot/pkg/logx"
)

const historySize = 200

// onFire runs on the cron timer goroutine. It must stay cheap: overlap check
// and enqueue only, so a slow fire never stalls other jobs' trigger
// evaluation.
func (e *Engine) onFire(ent *jobEntry) {
	if !ent.state.tryAcquire() {
		e.log.Debug("fire skipped, previous still running", logx.String("job_id", ent.desc.JobID))
		return
	}

	f := fire{
		runID:  uuid.NewString(),
		jobID:  ent.desc.JobID,
		userID: ent.desc.UserID,
		state:  ent.state,
	}

	e.mu.Lock()
	q := e.queue
	e.mu.Unlock()
	if q == nil {
		ent.state.release()
		return
	}
	select {
	case q <- f:
	default:
		ent.state.release()
		e.log.Warn("fire queue full, dropping occurrence", logx.String("job_id", f.jobID))
	}
}

func (e *Engine) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan fire, idx int) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case f := <-queue:
			e.runFire(ctx, f)
		}
	}
}

// runFire executes one occurrence end to end. Every failure is contained:
// logged, recorded in history, and never allowed to disturb the recurring
// trigger — the job stays Active for its next occurrence.
func (e *Engine) runFire(ctx context.Context, f fire) {
	defer f.state.release()

	start := time.Now()
	log := e.log.With(logx.String("job_id", f.jobID), logx.String("run_id", f.runID))

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.FireTimeout)
	defer cancel()

	item := HistoryItem{RunID: f.runID, JobID: f.jobID, Started: start}
	defer func() {
		item.Duration = time.Since(start)
		e.appendHistory(item)
	}()

	// Always act on the current record, never a frozen copy: preferences may
	// have changed since the trigger was installed.
	p, err := e.players.Player(runCtx, f.userID)
	if err != nil {
		item.Error = err.Error()
		log.Warn("fire aborted: player fetch failed", logx.Err(err))
		return
	}
	tod, err := schedule.ParseTimeOfDay(p.NotifyTime)
	if err != nil {
		item.Error = err.Error()
		log.Warn("fire aborted: unresolvable notification time", logx.String("raw", p.NotifyTime), logx.Err(err))
		return
	}

	snapshot, err := e.slots.Snapshot(runCtx)
	if err != nil {
		item.Error = err.Error()
		log.Warn("fire aborted: availability fetch failed", logx.Err(err))
		return
	}

	now := time.Now().In(e.loc)
	matched := matcher.Match(p, snapshot, now, tod, log)
	item.Matched = len(matched)

	text := notifier.Render(p.Name, matched)
	if err := e.notif.Deliver(runCtx, transport.Recipient{ID: p.ID}, text); err != nil {
		// Delivery failure exhausts its own retry budget; the job remains
		// Active and will fire again at the next occurrence.
		item.Error = err.Error()
		log.Warn("fire delivery failed", logx.Err(err))
		return
	}

	log.Info("fire delivered", logx.Int("matched", len(matched)), logx.Duration("dur", time.Since(start)))
}

func (e *Engine) appendHistory(item HistoryItem) {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	e.history = append(e.history, item)
	if len(e.history) > historySize {
		e.history = e.history[len(e.history)-historySize:]
	}
}
