package notifier

import (
	"fmt"
	"strings"
	"time"

	"courtbot/internal/availability"
)

// Placeholders keep the message shape stable when optional slot fields are
// missing, so clients and tests can rely on a fixed block structure.
const (
	placeholderMissing    = "Not Provided"
	placeholderNoBooking  = "Booking link not available"
	placeholderBadTiming  = "Invalid time format"
	placeholderBadDateFmt = "Invalid Date Format"
)

// Render builds the notification text for a matched-slot set. Rendering is
// deterministic: one block per slot in input order, every field present.
func Render(name string, slots []availability.Slot) string {
	if len(slots) == 0 {
		return fmt.Sprintf("Hi %s, currently no available slots match your preferences.", name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, here are the latest updates for your preferences:\n\n", name)

	for _, s := range slots {
		fields := []string{
			"*Turf*: " + orPlaceholder(title(s.Business), placeholderMissing),
			"*Sport*: " + orPlaceholder(title(s.Sport), placeholderMissing),
			"*Area*: " + orPlaceholder(title(s.Locality), placeholderMissing),
			"*Date*: " + renderDate(s.Date),
			"*Timing*: " + renderTiming(s.Timing),
			"*Price*: " + renderPrice(s.Price),
			"👉 *Book Now*: " + orPlaceholder(strings.TrimSpace(s.Booking), placeholderNoBooking),
		}
		b.WriteString(strings.Join(fields, " | "))
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return placeholderMissing
	}
	// Location is irrelevant for format validation.
	if _, err := availability.ParseDate(s, time.UTC); err != nil {
		return placeholderBadDateFmt
	}
	return s
}

func renderTiming(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return placeholderMissing
	}
	if _, _, err := availability.ParseTiming(s); err != nil {
		return placeholderBadTiming
	}
	return s
}

func renderPrice(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return placeholderMissing
	}
	return "₹" + strings.TrimPrefix(s, "₹")
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
