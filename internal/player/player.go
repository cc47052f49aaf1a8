package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an identity has no registered preference record.
var ErrNotFound = errors.New("player not registered")

// IsNotFound reports whether err means the identity has no record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Preference is one player's typed preference snapshot, adapted at the source
// boundary from whatever row shape the backing record store uses. The core
// only ever reads these; the command layer is the mutator.
type Preference struct {
	// ID is the normalized, channel-routable identity (includes the routing
	// prefix, e.g. "+919903074027"). It is also the input for the job id.
	ID   string
	Name string

	Sports     []string
	Localities []string

	// NotifyTime is free text ("10:00 AM", "18:30", "8"), resolved by the
	// scheduling engine at schedule time.
	NotifyTime string
	// Frequency is a label from the fixed cadence vocabulary.
	Frequency string
}

// Source provides read access to the preference store. Implementations must
// return current data on every call; the engine re-fetches at fire time and
// never acts on cached snapshots.
type Source interface {
	Player(ctx context.Context, id string) (Preference, error)
	Players(ctx context.Context) ([]Preference, error)
}

// NormalizeIdentity canonicalizes a raw identity string. Identities without an
// explicit routing prefix get the default country prefix, matching what the
// delivery channel expects.
func NormalizeIdentity(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "+") {
		s = "+91" + s
	}
	return s
}

// Validate reports whether the record carries every field the scheduling
// engine needs. Frequency and time text are validated separately by the
// resolver; this only checks presence.
func (p Preference) Validate() error {
	var missing []string
	if strings.TrimSpace(p.ID) == "" {
		missing = append(missing, "identity")
	}
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if len(p.Sports) == 0 {
		missing = append(missing, "sports")
	}
	if len(p.Localities) == 0 {
		missing = append(missing, "localities")
	}
	if strings.TrimSpace(p.NotifyTime) == "" {
		missing = append(missing, "notification time")
	}
	if strings.TrimSpace(p.Frequency) == "" {
		missing = append(missing, "notification frequency")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SplitTokens turns comma-separated preference text ("Football, Padel") into
// trimmed tokens. Empty tokens are dropped.
func SplitTokens(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// JoinTokens is the inverse of SplitTokens, used when persisting sets.
func JoinTokens(tokens []string) string { return strings.Join(tokens, ", ") }
