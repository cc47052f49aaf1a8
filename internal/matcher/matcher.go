// Package matcher filters an availability snapshot against one player's
// preferences and the current instant.
package matcher

import (
	"strings"
	"time"

	"courtbot/internal/availability"
	"courtbot/internal/player"
	"courtbot/internal/schedule"
	"courtbot/pkg/logx"
)

const statusNotBooked = "not booked"

// Match returns the subset of slots that is both eligible (sport, locality,
// "not booked" status) and timely for this notification pass. Snapshot order
// is preserved; there is no ranking or deduplication.
//
// A slot dated today is only included when its start time is later than both
// the current wall-clock time and the player's own notification time: slots
// that already started are never announced, and a slot starting before the
// player's window would arrive as a stale suggestion.
//
// A malformed date or timing on an individual slot drops only that slot.
func Match(p player.Preference, slots []availability.Slot, now time.Time, notify schedule.TimeOfDay, log logx.Logger) []availability.Slot {
	sports := normalizeSet(p.Sports)
	localities := normalizeSet(p.Localities)

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	nowMin := now.Hour()*60 + now.Minute()

	var out []availability.Slot
	for _, s := range slots {
		if !eligible(s, sports, localities) {
			continue
		}

		date, err := availability.ParseDate(s.Date, now.Location())
		if err != nil {
			log.Warn("slot dropped", logx.String("business", s.Business), logx.String("date", s.Date), logx.Err(err))
			continue
		}
		switch {
		case date.After(today):
			out = append(out, s)
		case date.Equal(today):
			startMin, _, err := availability.ParseTiming(s.Timing)
			if err != nil {
				log.Warn("slot dropped", logx.String("business", s.Business), logx.String("timing", s.Timing), logx.Err(err))
				continue
			}
			if startMin > nowMin && startMin > notify.MinuteOfDay() {
				out = append(out, s)
			}
		}
	}
	return out
}

// MatchEligible applies the preference filter without the time window. Used
// for on-demand update requests, where the player gets everything currently
// open regardless of when it starts.
func MatchEligible(p player.Preference, slots []availability.Slot) []availability.Slot {
	sports := normalizeSet(p.Sports)
	localities := normalizeSet(p.Localities)
	var out []availability.Slot
	for _, s := range slots {
		if eligible(s, sports, localities) {
			out = append(out, s)
		}
	}
	return out
}

// FilterBusiness returns the eligible ("not booked") slots of one business,
// regardless of player preferences. Used by the "updates on <court>" command.
func FilterBusiness(slots []availability.Slot, business string) []availability.Slot {
	want := norm(business)
	var out []availability.Slot
	for _, s := range slots {
		if norm(s.Business) == want && norm(s.Status) == statusNotBooked {
			out = append(out, s)
		}
	}
	return out
}

func eligible(s availability.Slot, sports, localities map[string]struct{}) bool {
	if norm(s.Status) != statusNotBooked {
		return false
	}
	if _, ok := sports[norm(s.Sport)]; !ok {
		return false
	}
	if _, ok := localities[norm(s.Locality)]; !ok {
		return false
	}
	return true
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normalizeSet(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if n := norm(t); n != "" {
			m[n] = struct{}{}
		}
	}
	return m
}
