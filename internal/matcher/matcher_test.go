package matcher

import (
	"testing"
	"time"

	"courtbot/internal/availability"
	"courtbot/internal/player"
	"courtbot/internal/schedule"
	"courtbot/pkg/logx"
)

var testPlayer = player.Preference{
	ID:         "+919903074027",
	Name:       "Asha",
	Sports:     []string{"Football"},
	Localities: []string{"Koramangala"},
}

// now is fixed at 17:00 local; the player's notification time is 09:00.
var (
	now       = time.Date(2026, 8, 28, 17, 0, 0, 0, time.UTC)
	notifyAt  = schedule.TimeOfDay{Hour: 9, Minute: 0}
	today     = "2026-08-28"
	tomorrow  = "2026-08-29"
	yesterday = "2026-08-27"
)

func slot(sport, locality, status, date, timing string) availability.Slot {
	return availability.Slot{
		Business: "TurfXL",
		Sport:    sport,
		Locality: locality,
		Status:   status,
		Date:     date,
		Timing:   timing,
	}
}

func TestMatchFiltersBookedSlots(t *testing.T) {
	t.Parallel()
	slots := []availability.Slot{
		slot("football", "koramangala", "not booked", today, "6:00 PM-7:00 PM"),
		slot("football", "koramangala", "booked", today, "6:00 PM-7:00 PM"),
	}
	got := Match(testPlayer, slots, now, notifyAt, logx.Nop())
	if len(got) != 1 || got[0].Status != "not booked" {
		t.Fatalf("want exactly the unbooked slot, got %v", got)
	}
}

func TestMatchNormalizesTokens(t *testing.T) {
	t.Parallel()
	slots := []availability.Slot{
		slot("  FOOTBALL ", " Koramangala", "Not Booked", tomorrow, "6:00 PM-7:00 PM"),
	}
	got := Match(testPlayer, slots, now, notifyAt, logx.Nop())
	if len(got) != 1 {
		t.Fatalf("case/space variants should match, got %v", got)
	}
}

func TestMatchExcludesWrongPreference(t *testing.T) {
	t.Parallel()
	slots := []availability.Slot{
		slot("cricket", "koramangala", "not booked", tomorrow, "6:00 PM-7:00 PM"),
		slot("football", "indiranagar", "not booked", tomorrow, "6:00 PM-7:00 PM"),
	}
	if got := Match(testPlayer, slots, now, notifyAt, logx.Nop()); len(got) != 0 {
		t.Fatalf("want no matches, got %v", got)
	}
}

func TestMatchTimeWindow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		date   string
		timing string
		want   bool
	}{
		{name: "future date", date: tomorrow, timing: "6:00 AM-7:00 AM", want: true},
		{name: "past date", date: yesterday, timing: "6:00 PM-7:00 PM", want: false},
		{name: "today after now", date: today, timing: "6:00 PM-7:00 PM", want: true},
		{name: "today already started", date: today, timing: "4:00 PM-5:00 PM", want: false},
		{name: "today starting exactly now", date: today, timing: "5:00 PM-6:00 PM", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			slots := []availability.Slot{slot("football", "koramangala", "not booked", tt.date, tt.timing)}
			got := Match(testPlayer, slots, now, notifyAt, logx.Nop())
			if (len(got) == 1) != tt.want {
				t.Fatalf("match = %v, want %v", len(got) == 1, tt.want)
			}
		})
	}
}

func TestMatchHonorsNotificationWindow(t *testing.T) {
	t.Parallel()
	// Fire at 06:00, notification time 09:00: a slot today at 08:00 starts
	// after "now" but before the player's own window, so it is excluded.
	earlyNow := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	slots := []availability.Slot{slot("football", "koramangala", "not booked", today, "8:00 AM-9:00 AM")}
	if got := Match(testPlayer, slots, earlyNow, notifyAt, logx.Nop()); len(got) != 0 {
		t.Fatalf("slot before notification window should be excluded, got %v", got)
	}

	later := []availability.Slot{slot("football", "koramangala", "not booked", today, "10:00 AM-11:00 AM")}
	if got := Match(testPlayer, later, earlyNow, notifyAt, logx.Nop()); len(got) != 1 {
		t.Fatalf("slot after both now and window should match, got %v", got)
	}
}

func TestMatchDropsMalformedSlotOnly(t *testing.T) {
	t.Parallel()
	slots := []availability.Slot{
		slot("football", "koramangala", "not booked", "someday", "6:00 PM-7:00 PM"),
		slot("football", "koramangala", "not booked", today, "evening"),
		slot("football", "koramangala", "not booked", tomorrow, "6:00 PM-7:00 PM"),
	}
	got := Match(testPlayer, slots, now, notifyAt, logx.Nop())
	if len(got) != 1 || got[0].Date != tomorrow {
		t.Fatalf("malformed slots should be dropped without aborting, got %v", got)
	}
}

func TestMatchPreservesSnapshotOrder(t *testing.T) {
	t.Parallel()
	slots := []availability.Slot{
		slot("football", "koramangala", "not booked", tomorrow, "6:00 AM-7:00 AM"),
		slot("football", "koramangala", "not booked", tomorrow, "5:00 AM-6:00 AM"),
		slot("football", "koramangala", "not booked", tomorrow, "7:00 AM-8:00 AM"),
	}
	got := Match(testPlayer, slots, now, notifyAt, logx.Nop())
	if len(got) != 3 {
		t.Fatalf("want 3 matches, got %d", len(got))
	}
	for i := range slots {
		if got[i].Timing != slots[i].Timing {
			t.Fatalf("order not preserved: %v", got)
		}
	}
}

func TestMatchEligibleSkipsTimeWindow(t *testing.T) {
	t.Parallel()
	slots := []availability.Slot{
		slot("football", "koramangala", "not booked", yesterday, "6:00 AM-7:00 AM"),
		slot("football", "koramangala", "booked", tomorrow, "6:00 AM-7:00 AM"),
		slot("cricket", "koramangala", "not booked", tomorrow, "6:00 AM-7:00 AM"),
	}
	got := MatchEligible(testPlayer, slots)
	if len(got) != 1 || got[0].Date != yesterday {
		t.Fatalf("MatchEligible = %v", got)
	}
}

func TestFilterBusiness(t *testing.T) {
	t.Parallel()
	slots := []availability.Slot{
		{Business: "TurfXL", Status: "not booked"},
		{Business: "PadelClub", Status: "not booked"},
		{Business: "turfxl", Status: "booked"},
	}
	got := FilterBusiness(slots, "turfxl")
	if len(got) != 1 || got[0].Business != "TurfXL" {
		t.Fatalf("FilterBusiness = %v", got)
	}
}
