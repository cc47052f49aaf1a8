package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSlotFormat marks a malformed date or time-range on a single slot.
// The matcher drops that slot and continues; it never aborts a pass.
var ErrInvalidSlotFormat = errors.New("invalid slot format")

// Date formats the availability sheets are known to produce.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseDate resolves a slot's textual date in the given location. The returned
// time is midnight local.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidSlotFormat)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSlotFormat, raw)
}

// ParseTiming splits a "start-end" 12-hour range and returns start and end as
// minutes since midnight. " - " and "-" separators are both accepted.
func ParseTiming(raw string) (startMin, endMin int, err error) {
	s := strings.TrimSpace(raw)
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: timing %q", ErrInvalidSlotFormat, raw)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: timing %q", ErrInvalidSlotFormat, raw)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: timing %q", ErrInvalidSlotFormat, raw)
	}
	return start, end, nil
}

var clockLayouts = []string{"3:04 PM", "3:04PM", "3 PM", "3PM", "15:04"}

func parseClock(raw string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("unparseable clock %q", raw)
}
