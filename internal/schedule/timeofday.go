package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidTime is returned for unparseable notification time-of-day text.
var ErrInvalidTime = errors.New("invalid notification time")

// TimeOfDay is a wall-clock notification time at minute granularity.
type TimeOfDay struct {
	Hour   int // 0..23
	Minute int // 0..59
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// MinuteOfDay returns minutes since midnight, for window comparisons.
func (t TimeOfDay) MinuteOfDay() int { return t.Hour*60 + t.Minute }

var timeOfDayRE = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)

// ParseTimeOfDay resolves free-text notification time into (hour, minute).
//
// Accepted forms:
//   - "9:00 AM", "12:30 pm" (12-hour with meridiem)
//   - "9 AM", "7pm" (bare hour with meridiem)
//   - "14:30" (24-hour)
//   - "9" (bare hour, no meridiem)
//
// A bare hour without meridiem uses a heuristic: hour <= 7 resolves to AM,
// hour > 7 to PM. Hours 13..23 are taken as 24-hour input. Anything else
// fails with ErrInvalidTime.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, "'") // sheet exports quote times to force text cells
	m := timeOfDayRE.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
	}

	switch meridiem := m[3]; {
	case meridiem != "":
		if hour < 1 || hour > 12 {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		if meridiem == "pm" && hour != 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
	case m[2] != "":
		// 24-hour "HH:MM"
		if hour > 23 {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
	default:
		// Bare hour heuristic.
		switch {
		case hour <= 7:
			// AM as-is
		case hour <= 12:
			if hour != 12 {
				hour += 12
			}
		case hour <= 23:
			// already 24-hour
		default:
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}
