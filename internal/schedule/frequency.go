package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidFrequency is returned for cadence labels outside the fixed vocabulary.
var ErrInvalidFrequency = errors.New("invalid notification frequency")

// Frequency is a notification cadence. The vocabulary is fixed; each value
// maps to a deterministic weekday set.
type Frequency string

const (
	FreqDaily       Frequency = "daily"
	FreqWeekly      Frequency = "weekly"
	FreqTwiceAWeek  Frequency = "twice a week"
	FreqThriceAWeek Frequency = "thrice a week"
	FreqWeekend     Frequency = "weekend"
)

var frequencyDays = map[Frequency][]time.Weekday{
	FreqDaily:       {time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday},
	FreqWeekly:      {time.Monday},
	FreqTwiceAWeek:  {time.Tuesday, time.Thursday},
	FreqThriceAWeek: {time.Monday, time.Wednesday, time.Friday},
	FreqWeekend:     {time.Saturday, time.Sunday},
}

// FrequencyNames lists the accepted cadence labels, sorted.
func FrequencyNames() []string {
	out := make([]string, 0, len(frequencyDays))
	for f := range frequencyDays {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// ParseFrequency normalizes a free-text cadence label.
func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := frequencyDays[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, raw)
	}
	return f, nil
}

// DaysForFrequency returns the weekday set for a cadence label.
func DaysForFrequency(raw string) ([]time.Weekday, error) {
	f, err := ParseFrequency(raw)
	if err != nil {
		return nil, err
	}
	out := make([]time.Weekday, len(frequencyDays[f]))
	copy(out, frequencyDays[f])
	return out, nil
}

// DaysMask packs a weekday set into a bitmask (bit 0 = Sunday, matching
// time.Weekday). Used by the durable job descriptor.
func DaysMask(days []time.Weekday) uint8 {
	var m uint8
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

// DaysFromMask unpacks a weekday bitmask in Sunday..Saturday order.
func DaysFromMask(m uint8) []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if m&(1<<uint(d)) != 0 {
			out = append(out, d)
		}
	}
	return out
}

// CronDOW renders a weekday set as a cron day-of-week list ("1,3,5", Sunday=0).
func CronDOW(days []time.Weekday) string {
	var b strings.Builder
	for i, d := range days {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%d", int(d))
	}
	return b.String()
}
