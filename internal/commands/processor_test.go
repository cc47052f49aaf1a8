package commands

import (
	"context"
	"strings"
	"sync"
	"testing"

	"courtbot/internal/availability"
	"courtbot/internal/player"
	"courtbot/internal/transport"
	"courtbot/pkg/logx"
)

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

func (m *memPlayers) Players(context.Context) ([]player.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]player.Preference, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPlayers) SavePlayer(_ context.Context, p player.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	return nil
}

func (m *memPlayers) DeletePlayer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type fakeScheduler struct {
	scheduled []player.Preference
	cancelled []string
}

func (f *fakeScheduler) Schedule(_ context.Context, p player.Preference) (string, error) {
	f.scheduled = append(f.scheduled, p)
	return p.ID + "_notification", nil
}

func (f *fakeScheduler) Cancel(_ context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Deliver(_ context.Context, _ transport.Recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("no reply sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeSlots struct {
	slots []availability.Slot
}

func (f *fakeSlots) Snapshot(context.Context) ([]availability.Slot, error) {
	return f.slots, nil
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

func newTestProcessor(players *memPlayers, slots *fakeSlots) (*Processor, *fakeScheduler, *fakeSender) {
	sched := &fakeScheduler{}
	sender := &fakeSender{}
	p := NewProcessor(Config{}, players, slots, sched, sender, logx.Nop())
	return p, sched, sender
}

func handle(p *Processor, from, text string) {
	p.Handle(context.Background(), transport.Update{From: transport.Recipient{ID: from}, Text: text})
}

func TestHandleUnknownCommand(t *testing.T) {
	p, _, sender := newTestProcessor(newMemPlayers(testPlayer()), &fakeSlots{})
	handle(p, "+919903074027", "book me a court")
	if got := sender.last(t); got != msgInvalidCommand {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleUpdateUnregistered(t *testing.T) {
	p, _, sender := newTestProcessor(newMemPlayers(), &fakeSlots{})
	handle(p, "+919000000000", "update")
	if got := sender.last(t); got != msgNotRegistered {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleUpdateSendsOpenSlots(t *testing.T) {
	slots := &fakeSlots{slots: []availability.Slot{
		{Business: "Play Arena", Sport: "Football", Locality: "Koramangala", Status: "not booked",
			Date: "2026-01-05", Timing: "7:00 AM - 8:00 AM", Price: "900"},
		{Business: "Play Arena", Sport: "Cricket", Locality: "Koramangala", Status: "not booked",
			Date: "2026-01-05", Timing: "8:00 AM - 9:00 AM", Price: "900"},
	}}
	p, _, sender := newTestProcessor(newMemPlayers(testPlayer()), slots)

	handle(p, "+919903074027", "update")
	got := sender.last(t)
	if !strings.Contains(got, "Play Arena") || !strings.Contains(got, "*Sport*: Football") {
		t.Fatalf("reply missing matched slot: %q", got)
	}
	if strings.Contains(got, "Cricket") {
		t.Fatalf("unpreferred sport leaked: %q", got)
	}
}

func TestHandleCourtUpdatesNoSlots(t *testing.T) {
	p, _, sender := newTestProcessor(newMemPlayers(testPlayer()), &fakeSlots{})
	handle(p, "+919903074027", "updates on turfxl")
	if got := sender.last(t); got != "No available slots for turfxl at the moment." {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleCourtUpdatesIgnoresPreferences(t *testing.T) {
	slots := &fakeSlots{slots: []availability.Slot{
		{Business: "TurfXL", Sport: "Cricket", Locality: "Indiranagar", Status: "not booked",
			Date: "2026-01-05", Timing: "6:00 PM - 7:00 PM", Price: "1500"},
	}}
	p, _, sender := newTestProcessor(newMemPlayers(testPlayer()), slots)

	handle(p, "+919903074027", "updates on TurfXL")
	got := sender.last(t)
	if !strings.Contains(got, "*Sport*: Cricket") {
		t.Fatalf("court updates should not filter by player sports: %q", got)
	}
}

func TestHandleDiscontinue(t *testing.T) {
	p, sched, sender := newTestProcessor(newMemPlayers(testPlayer()), &fakeSlots{})
	handle(p, "+919903074027", "discontinue")
	if len(sched.cancelled) != 1 || sched.cancelled[0] != "+919903074027" {
		t.Fatalf("cancelled = %v", sched.cancelled)
	}
	if got := sender.last(t); got != msgUnsubscribed {
		t.Fatalf("reply = %q", got)
	}
}

func TestHandleAddSports(t *testing.T) {
	players := newMemPlayers(testPlayer())
	p, sched, sender := newTestProcessor(players, &fakeSlots{})

	handle(p, "+919903074027", "add pickleball and snooker")
	got := sender.last(t)
	if !strings.Contains(got, "Added new sports to your preferences: Pickleball.") {
		t.Fatalf("reply = %q", got)
	}
	if !strings.Contains(got, "not supported: Snooker.") {
		t.Fatalf("unsupported sport not reported: %q", got)
	}

	saved, _ := players.Player(context.Background(), "+919903074027")
	if len(saved.Sports) != 2 || saved.Sports[1] != "Pickleball" {
		t.Fatalf("sports not persisted: %v", saved.Sports)
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("preference change must reschedule, got %d calls", len(sched.scheduled))
	}
}

func TestHandleAddAlreadyPresent(t *testing.T) {
	players := newMemPlayers(testPlayer())
	p, sched, sender := newTestProcessor(players, &fakeSlots{})

	handle(p, "+919903074027", "add football")
	if got := sender.last(t); !strings.Contains(got, "No new sports were added") {
		t.Fatalf("reply = %q", got)
	}
	if len(sched.scheduled) != 0 {
		t.Fatalf("no-op change must not reschedule")
	}
}

func TestHandleChangeSports(t *testing.T) {
	players := newMemPlayers(testPlayer())
	p, _, sender := newTestProcessor(players, &fakeSlots{})

	handle(p, "+919903074027", "change sports from football to cricket and padel")
	got := sender.last(t)
	if !strings.Contains(got, "updated from Football to Cricket, Padel") {
		t.Fatalf("reply = %q", got)
	}
	saved, _ := players.Player(context.Background(), "+919903074027")
	if len(saved.Sports) != 2 || saved.Sports[0] != "Cricket" {
		t.Fatalf("sports = %v", saved.Sports)
	}
}

func TestHandleChangeTiming(t *testing.T) {
	players := newMemPlayers(testPlayer())
	p, sched, sender := newTestProcessor(players, &fakeSlots{})

	handle(p, "+919903074027", "change notification timings from 10 am to 6:30 pm")
	if got := sender.last(t); !strings.Contains(got, "updated from 10:00 AM to 6:30 pm") {
		t.Fatalf("reply = %q", got)
	}
	saved, _ := players.Player(context.Background(), "+919903074027")
	if saved.NotifyTime != "6:30 pm" {
		t.Fatalf("NotifyTime = %q", saved.NotifyTime)
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("timing change must reschedule")
	}
}

func TestHandleChangeTimingUnresolvable(t *testing.T) {
	players := newMemPlayers(testPlayer())
	p, sched, sender := newTestProcessor(players, &fakeSlots{})

	handle(p, "+919903074027", "change notification timings from 10 am to 99")
	if got := sender.last(t); !strings.Contains(got, "not a time I can schedule") {
		t.Fatalf("reply = %q", got)
	}
	saved, _ := players.Player(context.Background(), "+919903074027")
	if saved.NotifyTime != "10:00 AM" {
		t.Fatalf("record mutated on invalid time: %q", saved.NotifyTime)
	}
	if len(sched.scheduled) != 0 {
		t.Fatalf("invalid change must not reschedule")
	}
}

func TestHandleChangeDays(t *testing.T) {
	players := newMemPlayers(testPlayer())
	p, _, sender := newTestProcessor(players, &fakeSlots{})

	handle(p, "+919903074027", "change notification day from daily to weekend")
	if got := sender.last(t); !strings.Contains(got, "updated from daily to weekend") {
		t.Fatalf("reply = %q", got)
	}
	saved, _ := players.Player(context.Background(), "+919903074027")
	if saved.Frequency != "weekend" {
		t.Fatalf("Frequency = %q", saved.Frequency)
	}
}

func TestHandleRemoveSports(t *testing.T) {
	pref := testPlayer()
	pref.Sports = []string{"Football", "Padel"}
	players := newMemPlayers(pref)
	p, _, sender := newTestProcessor(players, &fakeSlots{})

	handle(p, "+919903074027", "remove padel")
	if got := sender.last(t); !strings.Contains(got, "Removed: Padel.") {
		t.Fatalf("reply = %q", got)
	}
	saved, _ := players.Player(context.Background(), "+919903074027")
	if len(saved.Sports) != 1 || saved.Sports[0] != "Football" {
		t.Fatalf("sports = %v", saved.Sports)
	}
}

func TestHandlePreferences(t *testing.T) {
	p, _, sender := newTestProcessor(newMemPlayers(testPlayer()), &fakeSlots{})
	handle(p, "+919903074027", "preferences")
	got := sender.last(t)
	for _, want := range []string{
		"*Sports*: Football",
		"*Areas*: Koramangala",
		"*Notification Timing*: 10:00 AM",
		"*Notification Frequency*: daily",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestHandleNormalizesIdentity(t *testing.T) {
	p, _, sender := newTestProcessor(newMemPlayers(testPlayer()), &fakeSlots{})
	handle(p, "whatsapp:9903074027", "preferences")
	if got := sender.last(t); !strings.Contains(got, "*Sports*: Football") {
		t.Fatalf("identity not normalized before lookup: %q", got)
	}
}
