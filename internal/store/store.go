// Package store is the durable persistence layer: versioned job descriptors
// for the scheduling engine and the player preference records mutated by the
// command layer.
package store

import (
	"context"
	"errors"
	"time"

	"courtbot/internal/player"
)

// ErrPersistence wraps failures of the backing store itself. Callers of
// schedule/cancel see it directly; it is never silently retried.
var ErrPersistence = errors.New("store unavailable")

// DescriptorVersion is bumped when the job descriptor schema changes, so a
// backend can migrate or reject rows it does not understand.
const DescriptorVersion = 1

// JobDescriptor is the explicit, schema-versioned trigger record for one
// player's recurring notification job. No serialized blobs: any key/value or
// relational backend can store this shape.
type JobDescriptor struct {
	// JobID is derived deterministically from the player identity, so at
	// most one job can exist per player.
	JobID   string
	Version int
	UserID  string
	// Days is a weekday bitmask (bit 0 = Sunday, matching time.Weekday).
	Days      uint8
	Hour      int
	Minute    int
	UpdatedAt time.Time
}

// JobStore persists job descriptors keyed by job id. PutJob is an atomic
// replace; DeleteJob of an absent id is a no-op.
type JobStore interface {
	PutJob(ctx context.Context, d JobDescriptor) error
	DeleteJob(ctx context.Context, jobID string) error
	Jobs(ctx context.Context) ([]JobDescriptor, error)
}

// PlayerStore is the preference repository: reads for the engine (via
// player.Source) plus the mutations the command layer performs.
type PlayerStore interface {
	player.Source
	SavePlayer(ctx context.Context, p player.Preference) error
	DeletePlayer(ctx context.Context, id string) error
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}
