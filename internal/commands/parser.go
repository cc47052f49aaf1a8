// Package commands parses free-text player messages and applies them: update
// requests, preference changes, subscription control.
package commands

import (
	"regexp"
	"strings"
)

// Kind identifies what a parsed message asks for.
type Kind int

const (
	KindUnknown Kind = iota
	KindUpdate
	KindCourtUpdates
	KindHelp
	KindDiscontinue
	KindChange
	KindAdd
	KindRemove
	KindPreferences
)

// Command is one parsed inbound message.
type Command struct {
	Kind  Kind
	Court string // KindCourtUpdates
	Change
}

// Change carries the edits extracted from change/add/remove phrasings. Empty
// slices and strings mean "not mentioned".
type Change struct {
	ReplaceSports []string // "change sports from a to b": the new set
	AddSports     []string
	RemoveSports  []string
	OldTime       string
	NewTime       string
	OldDays       []string
	NewDays       []string
}

func (c Change) empty() bool {
	return len(c.ReplaceSports) == 0 && len(c.AddSports) == 0 && len(c.RemoveSports) == 0 &&
		c.NewTime == "" && len(c.NewDays) == 0
}

var (
	sportsChangeRE = regexp.MustCompile(`change sports from ([a-z ,\-and]+) to ([a-z ,\-and]+)`)
	sportsAddRE    = regexp.MustCompile(`add ([a-z ,\-and]+)`)
	sportsRemoveRE = regexp.MustCompile(`remove ([a-z ,\-and]+)`)
	timingChangeRE = regexp.MustCompile(`change notification timings? from ([a-z0-9: ]+?) to ([a-z0-9: ]+)`)
	dayChangeRE    = regexp.MustCompile(`change notification days? from ([a-z ,\-and]+) to ([a-z ,\-and]+)`)
	listSplitRE    = regexp.MustCompile(`,| and | or `)
)

// Parse classifies one inbound message. Matching is case-insensitive and
// whitespace-tolerant; anything unrecognized comes back as KindUnknown.
func Parse(text string) Command {
	cmd := strings.ToLower(strings.TrimSpace(text))

	switch cmd {
	case "update", "updates":
		return Command{Kind: KindUpdate}
	case "help":
		return Command{Kind: KindHelp}
	case "discontinue":
		return Command{Kind: KindDiscontinue}
	case "preferences", "view preferences":
		return Command{Kind: KindPreferences}
	}

	if strings.HasPrefix(cmd, "updates on ") || strings.HasPrefix(cmd, "update on ") {
		return Command{Kind: KindCourtUpdates, Court: parseCourtName(cmd)}
	}
	if strings.HasPrefix(cmd, "change") {
		ch := parseChange(cmd)
		if ch.empty() {
			return Command{Kind: KindChange} // recognized verb, unparseable body
		}
		return Command{Kind: KindChange, Change: ch}
	}
	if strings.HasPrefix(cmd, "add ") {
		if sports := splitList(strings.TrimPrefix(cmd, "add ")); len(sports) > 0 {
			return Command{Kind: KindAdd, Change: Change{AddSports: sports}}
		}
	}
	if strings.HasPrefix(cmd, "remove ") {
		if m := sportsRemoveRE.FindStringSubmatch(cmd); m != nil {
			return Command{Kind: KindRemove, Change: Change{RemoveSports: splitList(m[1])}}
		}
	}

	return Command{Kind: KindUnknown}
}

func parseChange(cmd string) Change {
	var ch Change
	if m := sportsChangeRE.FindStringSubmatch(cmd); m != nil {
		ch.ReplaceSports = splitList(m[2])
	} else if m := sportsAddRE.FindStringSubmatch(cmd); m != nil {
		// "change ... add padel and cricket"
		ch.AddSports = splitList(m[1])
	}
	if m := timingChangeRE.FindStringSubmatch(cmd); m != nil {
		ch.OldTime = strings.TrimSpace(m[1])
		ch.NewTime = strings.TrimSpace(m[2])
	}
	if m := dayChangeRE.FindStringSubmatch(cmd); m != nil {
		ch.OldDays = splitList(m[1])
		ch.NewDays = splitList(m[2])
	}
	return ch
}

func parseCourtName(cmd string) string {
	for _, prefix := range []string{"updates on ", "update on "} {
		if strings.HasPrefix(cmd, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(cmd, prefix))
		}
	}
	return ""
}

// splitList breaks "padel, cricket and football" into its items, capitalized.
func splitList(raw string) []string {
	parts := listSplitRE.Split(raw, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Title(p))
		}
	}
	return out
}

// Title capitalizes the first letter only, matching how preferences are
// written back to the player record.
func Title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
