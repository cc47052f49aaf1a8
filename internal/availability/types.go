package availability

import "context"

// Slot is one bookable time window at a business. Immutable once read from
// the availability source.
type Slot struct {
	Business string
	Sport    string
	Locality string
	// Status text from the source; only "not booked" (case-insensitive) is
	// eligible for notification.
	Status string
	// Date is textual; several formats are accepted (see ParseDate).
	Date string
	// Timing is "start-end" in 12-hour clock text, e.g. "6:00 PM-7:00 PM".
	Timing string

	// Optional fields. Empty means not provided by the source.
	Price   string
	Booking string
}

// Source produces the current availability snapshot. The engine fetches a
// fresh snapshot on every fire; snapshots are never cached across fires.
type Source interface {
	Snapshot(ctx context.Context) ([]Slot, error)
}
