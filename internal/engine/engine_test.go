package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"courtbot/internal/availability"
	"courtbot/internal/notifier"
	"courtbot/internal/player"
	"courtbot/internal/store"
	"courtbot/internal/transport"
	"courtbot/pkg/logx"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]store.JobDescriptor
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]store.JobDescriptor{}}
}

func (m *memJobStore) PutJob(_ context.Context, d store.JobDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[d.JobID] = d
	return nil
}

func (m *memJobStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memJobStore) Jobs(_ context.Context) ([]store.JobDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.JobDescriptor, 0, len(m.jobs))
	for _, d := range m.jobs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memJobStore) get(jobID string) (store.JobDescriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.jobs[jobID]
	return d, ok
}

type memPlayers struct {
	mu   sync.Mutex
	byID map[string]player.Preference
}

func newMemPlayers(ps ...player.Preference) *memPlayers {
	m := &memPlayers{byID: map[string]player.Preference{}}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memPlayers) Player(_ context.Context, id string) (player.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return player.Preference{}, player.ErrNotFound
	}
	return p, nil
}

func (m *memPlayers) Players(_ context.Context) ([]player.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]player.Preference, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

type fakeSlots struct {
	slots []availability.Slot
	err   error
}

func (f *fakeSlots) Snapshot(context.Context) ([]availability.Slot, error) {
	return f.slots, f.err
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	to   []string
	err  error
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.Recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	f.to = append(f.to, to.ID)
	return nil
}

func (f *fakeAdapter) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testPlayer() player.Preference {
	return player.Preference{
		ID:         "+919903074027",
		Name:       "Asha",
		Sports:     []string{"Football"},
		Localities: []string{"Koramangala"},
		NotifyTime: "10:00 AM",
		Frequency:  "daily",
	}
}

func newTestEngine(t *testing.T, jobs store.JobStore, players player.Source, slots availability.Source, adapter *fakeAdapter) *Engine {
	t.Helper()
	notif := notifier.New(notifier.Config{Attempts: 1, RetryDelay: time.Millisecond, RatePerSec: 1000}, adapter, logx.Nop())
	return New(Config{Workers: 2, QueueSize: 8}, jobs, players, slots, notif, logx.Nop())
}

func TestScheduleReplacesExistingJob(t *testing.T) {
	jobs := newMemJobStore()
	p := testPlayer()
	e := newTestEngine(t, jobs, newMemPlayers(p), &fakeSlots{}, &fakeAdapter{})

	id1, err := e.Schedule(context.Background(), p)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	p.Frequency = "weekend"
	p.NotifyTime = "6:30 PM"
	id2, err := e.Schedule(context.Background(), p)
	if err != nil {
		t.Fatalf("Schedule replace: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("job id changed on reschedule: %q vs %q", id1, id2)
	}

	active := e.ActiveJobs()
	if len(active) != 1 || active[0] != id1 {
		t.Fatalf("want exactly one active job %q, got %v", id1, active)
	}

	d, ok := jobs.get(id1)
	if !ok {
		t.Fatalf("descriptor not persisted")
	}
	if d.Hour != 18 || d.Minute != 30 {
		t.Fatalf("descriptor reflects stale call: %+v", d)
	}
}

func TestScheduleResolverFailureInstallsNothing(t *testing.T) {
	jobs := newMemJobStore()
	p := testPlayer()
	p.Frequency = "fortnightly"
	e := newTestEngine(t, jobs, newMemPlayers(p), &fakeSlots{}, &fakeAdapter{})

	if _, err := e.Schedule(context.Background(), p); err == nil {
		t.Fatalf("want error for unknown frequency")
	}
	if got := e.ActiveJobs(); len(got) != 0 {
		t.Fatalf("partial job installed: %v", got)
	}
	if all, _ := jobs.Jobs(context.Background()); len(all) != 0 {
		t.Fatalf("partial descriptor persisted: %v", all)
	}
}

func TestCancelAbsentIsNoOp(t *testing.T) {
	e := newTestEngine(t, newMemJobStore(), newMemPlayers(), &fakeSlots{}, &fakeAdapter{})
	if err := e.Cancel(context.Background(), "+919999999999"); err != nil {
		t.Fatalf("Cancel absent: %v", err)
	}
}

func TestCancelRemovesJob(t *testing.T) {
	jobs := newMemJobStore()
	p := testPlayer()
	e := newTestEngine(t, jobs, newMemPlayers(p), &fakeSlots{}, &fakeAdapter{})

	id, err := e.Schedule(context.Background(), p)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := e.Cancel(context.Background(), p.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := e.ActiveJobs(); len(got) != 0 {
		t.Fatalf("job still active after cancel: %v", got)
	}
	if _, ok := jobs.get(id); ok {
		t.Fatalf("descriptor still persisted after cancel")
	}
}

func TestReconcileAllSkipsInvalidRecords(t *testing.T) {
	good := testPlayer()
	missing := player.Preference{ID: "+918888888888", Name: "Ravi", Frequency: "daily"}
	badTime := testPlayer()
	badTime.ID = "+917777777777"
	badTime.NotifyTime = "25:00"

	e := newTestEngine(t, newMemJobStore(), newMemPlayers(good, missing, badTime), &fakeSlots{}, &fakeAdapter{})

	if err := e.ReconcileAll(context.Background()); err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	active := e.ActiveJobs()
	if len(active) != 1 || active[0] != JobID(good.ID) {
		t.Fatalf("want only the valid player scheduled, got %v", active)
	}
}

func TestStartRearmsPersistedJobs(t *testing.T) {
	jobs := newMemJobStore()
	p := testPlayer()
	_ = jobs.PutJob(context.Background(), store.JobDescriptor{
		JobID: JobID(p.ID), Version: store.DescriptorVersion, UserID: p.ID,
		Days: 0b1111111, Hour: 10, Minute: 0,
	})
	_ = jobs.PutJob(context.Background(), store.JobDescriptor{
		JobID: "future_notification", Version: store.DescriptorVersion + 1, UserID: "+911",
		Days: 0b1111111, Hour: 10, Minute: 0,
	})

	e := newTestEngine(t, jobs, newMemPlayers(p), &fakeSlots{}, &fakeAdapter{})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop(context.Background())

	active := e.ActiveJobs()
	if len(active) != 1 || active[0] != JobID(p.ID) {
		t.Fatalf("want only the known-version descriptor rearmed, got %v", active)
	}
}

func TestFirePipelineDeliversMatched(t *testing.T) {
	p := testPlayer()
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	slots := &fakeSlots{slots: []availability.Slot{
		{Business: "Play Arena", Sport: "Football", Locality: "Koramangala", Status: "not booked",
			Date: tomorrow, Timing: "7:00 PM - 8:00 PM", Price: "1200"},
		{Business: "Play Arena", Sport: "Football", Locality: "Koramangala", Status: "booked",
			Date: tomorrow, Timing: "8:00 PM - 9:00 PM", Price: "1200"},
	}}
	adapter := &fakeAdapter{}
	e := newTestEngine(t, newMemJobStore(), newMemPlayers(p), slots, adapter)
	e.loc = time.UTC

	e.runFire(context.Background(), fire{runID: "r1", jobID: JobID(p.ID), userID: p.ID, state: &runState{running: true}})

	msgs := adapter.messages()
	if len(msgs) != 1 {
		t.Fatalf("want one delivered message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0], "Play Arena") || !strings.Contains(msgs[0], "7:00 PM - 8:00 PM") {
		t.Fatalf("message missing matched slot: %q", msgs[0])
	}
	if strings.Contains(msgs[0], "8:00 PM - 9:00 PM") {
		t.Fatalf("booked slot leaked into message: %q", msgs[0])
	}

	hist := e.History()
	if len(hist) != 1 || hist[0].Matched != 1 || hist[0].Error != "" {
		t.Fatalf("history mismatch: %+v", hist)
	}
}

func TestFireDeliveryFailureKeepsJobActive(t *testing.T) {
	jobs := newMemJobStore()
	p := testPlayer()
	adapter := &fakeAdapter{err: errors.New("gateway down")}
	e := newTestEngine(t, jobs, newMemPlayers(p), &fakeSlots{}, adapter)
	e.loc = time.UTC

	id, err := e.Schedule(context.Background(), p)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	st := &runState{}
	if !st.tryAcquire() {
		t.Fatalf("tryAcquire on fresh state")
	}
	e.runFire(context.Background(), fire{runID: "r1", jobID: id, userID: p.ID, state: st})

	if got := e.ActiveJobs(); len(got) != 1 {
		t.Fatalf("delivery failure must not cancel the job, got %v", got)
	}
	hist := e.History()
	if len(hist) != 1 || hist[0].Error == "" {
		t.Fatalf("history should record the failure: %+v", hist)
	}
	if !st.tryAcquire() {
		t.Fatalf("run state not released after fire")
	}
}

func TestFireMissingPlayerIsContained(t *testing.T) {
	adapter := &fakeAdapter{}
	e := newTestEngine(t, newMemJobStore(), newMemPlayers(), &fakeSlots{}, adapter)
	e.loc = time.UTC

	st := &runState{running: true}
	e.runFire(context.Background(), fire{runID: "r1", jobID: "gone_notification", userID: "gone", state: st})

	if msgs := adapter.messages(); len(msgs) != 0 {
		t.Fatalf("nothing should be sent for a missing player: %v", msgs)
	}
	hist := e.History()
	if len(hist) != 1 || hist[0].Error == "" {
		t.Fatalf("history should record the abort: %+v", hist)
	}
}

func TestOverlappingFireIsSkippedNotQueued(t *testing.T) {
	p := testPlayer()
	e := newTestEngine(t, newMemJobStore(), newMemPlayers(p), &fakeSlots{}, &fakeAdapter{})
	e.queue = make(chan fire, 8)

	ent := &jobEntry{
		desc:  store.JobDescriptor{JobID: JobID(p.ID), UserID: p.ID},
		state: &runState{},
	}

	// Simulate an in-flight fire.
	if !ent.state.tryAcquire() {
		t.Fatalf("tryAcquire on fresh state")
	}
	e.onFire(ent)
	if len(e.queue) != 0 {
		t.Fatalf("overlapping occurrence was queued")
	}

	// After release the next occurrence enqueues normally.
	ent.state.release()
	e.onFire(ent)
	if len(e.queue) != 1 {
		t.Fatalf("occurrence not enqueued after release")
	}
}

func TestJobID(t *testing.T) {
	if got := JobID("+919903074027"); got != "+919903074027_notification" {
		t.Fatalf("JobID = %q", got)
	}
}
