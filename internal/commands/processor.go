package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"courtbot/internal/availability"
	"courtbot/internal/matcher"
	"courtbot/internal/notifier"
	"courtbot/internal/player"
	"courtbot/internal/schedule"
	"courtbot/internal/store"
	"courtbot/internal/transport"
	"courtbot/pkg/logx"
)

const (
	msgNotRegistered  = "You are not registered. Please contact support."
	msgInvalidCommand = "Invalid command. Type *help* to see available commands."
	msgUnsubscribed   = "You have been successfully unsubscribed from notifications."
	msgGenericError   = "An error occurred while processing your request. Please try again later."

	msgChangeUsage = "Invalid command. Use the format:\n" +
		"- *add pickleball*\n" +
		"- *change sports from pickleball and football to cricket*\n" +
		"- *change notification timings from 10 am to 11 am*\n" +
		"- *change notification day from daily to weekend*"

	msgHelp = "Available Commands:\n" +
		"- *update*: Get notifications based on your preferences.\n" +
		"- *help*: Show this message.\n" +
		"- *discontinue*: Unsubscribe from updates.\n" +
		"- *change sports from [old sports] to [new sports]*: Update sports preferences.\n" +
		"- *add [sports]*: Add new sports to preferences.\n" +
		"- *change notification timings from [old time] to [new time]*: Update notification timings.\n" +
		"- *change notification day from [old days] to [new days]*: Update notification days.\n" +
		"- *updates on [court name]*: Get court-specific updates (e.g., updates on TurfXL).\n"
)

// Scheduler is the slice of the engine the processor needs.
type Scheduler interface {
	Schedule(ctx context.Context, p player.Preference) (string, error)
	Cancel(ctx context.Context, userID string) error
}

// Sender delivers one outbound reply.
type Sender interface {
	Deliver(ctx context.Context, to transport.Recipient, text string) error
}

type Config struct {
	// SupportedSports bounds what add/change may introduce. Defaults to the
	// four sports the availability sheet actually carries.
	SupportedSports []string
}

func (c Config) withDefaults() Config {
	if len(c.SupportedSports) == 0 {
		c.SupportedSports = []string{"Cricket", "Football", "Padel", "Pickleball"}
	}
	return c
}

// Processor routes parsed commands to their handlers.
type Processor struct {
	cfg       Config
	players   store.PlayerStore
	slots     availability.Source
	scheduler Scheduler
	sender    Sender
	log       logx.Logger

	supported map[string]struct{}
}

func NewProcessor(cfg Config, players store.PlayerStore, slots availability.Source, scheduler Scheduler, sender Sender, log logx.Logger) *Processor {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	supported := make(map[string]struct{}, len(cfg.SupportedSports))
	for _, s := range cfg.SupportedSports {
		supported[strings.ToLower(s)] = struct{}{}
	}
	return &Processor{
		cfg:       cfg,
		players:   players,
		slots:     slots,
		scheduler: scheduler,
		sender:    sender,
		log:       log,
		supported: supported,
	}
}

// Handle processes one inbound message end to end, replying on the same
// channel. Errors are logged and answered with a generic apology; they never
// propagate to the transport loop.
func (p *Processor) Handle(ctx context.Context, upd transport.Update) {
	id := player.NormalizeIdentity(upd.From.ID)
	to := transport.Recipient{ID: id}
	cmd := Parse(upd.Text)

	log := p.log.With(logx.String("player", id))
	log.Debug("command received", logx.String("text", upd.Text))

	var err error
	switch cmd.Kind {
	case KindUpdate:
		err = p.handleUpdate(ctx, id, to)
	case KindCourtUpdates:
		err = p.handleCourtUpdates(ctx, to, cmd.Court)
	case KindHelp:
		err = p.sender.Deliver(ctx, to, msgHelp)
	case KindDiscontinue:
		err = p.handleDiscontinue(ctx, id, to)
	case KindChange, KindAdd, KindRemove:
		err = p.handleChange(ctx, id, to, cmd)
	case KindPreferences:
		err = p.handlePreferences(ctx, id, to)
	default:
		err = p.sender.Deliver(ctx, to, msgInvalidCommand)
	}
	if err != nil {
		log.Error("command failed", logx.String("text", upd.Text), logx.Err(err))
		_ = p.sender.Deliver(ctx, to, msgGenericError)
	}
}

func (p *Processor) handleUpdate(ctx context.Context, id string, to transport.Recipient) error {
	pref, err := p.players.Player(ctx, id)
	if err != nil {
		if player.IsNotFound(err) {
			return p.sender.Deliver(ctx, to, msgNotRegistered)
		}
		return err
	}

	slots, err := p.slots.Snapshot(ctx)
	if err != nil {
		return err
	}
	// On-demand updates skip the time window: the player asked right now and
	// gets everything currently open for their sports and localities.
	matched := matcher.MatchEligible(pref, slots)
	return p.sender.Deliver(ctx, to, notifier.Render(pref.Name, matched))
}

func (p *Processor) handleCourtUpdates(ctx context.Context, to transport.Recipient, court string) error {
	if court == "" {
		return p.sender.Deliver(ctx, to, "Invalid court name. Please try again or type *help* for available commands.")
	}
	slots, err := p.slots.Snapshot(ctx)
	if err != nil {
		return err
	}
	matched := matcher.FilterBusiness(slots, court)
	if len(matched) == 0 {
		return p.sender.Deliver(ctx, to, fmt.Sprintf("No available slots for %s at the moment.", court))
	}
	return p.sender.Deliver(ctx, to, notifier.Render(court, matched))
}

func (p *Processor) handleDiscontinue(ctx context.Context, id string, to transport.Recipient) error {
	if err := p.scheduler.Cancel(ctx, id); err != nil {
		return err
	}
	p.log.Info("player unsubscribed", logx.String("player", id))
	return p.sender.Deliver(ctx, to, msgUnsubscribed)
}

func (p *Processor) handlePreferences(ctx context.Context, id string, to transport.Recipient) error {
	pref, err := p.players.Player(ctx, id)
	if err != nil {
		if player.IsNotFound(err) {
			return p.sender.Deliver(ctx, to, msgNotRegistered)
		}
		return err
	}
	msg := fmt.Sprintf("Your current preferences are:\n\n"+
		"• *Sports*: %s\n"+
		"• *Areas*: %s\n"+
		"• *Notification Timing*: %s\n"+
		"• *Notification Frequency*: %s\n",
		player.JoinTokens(pref.Sports), player.JoinTokens(pref.Localities),
		pref.NotifyTime, pref.Frequency)
	return p.sender.Deliver(ctx, to, msg)
}

// handleChange applies sports/timing/cadence edits, persists the record, and
// reschedules the player's job so the trigger reflects the new preferences.
func (p *Processor) handleChange(ctx context.Context, id string, to transport.Recipient, cmd Command) error {
	if cmd.Change.empty() {
		return p.sender.Deliver(ctx, to, msgChangeUsage)
	}

	pref, err := p.players.Player(ctx, id)
	if err != nil {
		if player.IsNotFound(err) {
			return p.sender.Deliver(ctx, to, msgNotRegistered)
		}
		return err
	}

	var ack []string
	changed := false

	if len(cmd.ReplaceSports) > 0 {
		valid, invalid := p.validateSports(cmd.ReplaceSports)
		if len(valid) > 0 {
			old := player.JoinTokens(pref.Sports)
			pref.Sports = valid
			changed = true
			ack = append(ack, fmt.Sprintf("Your sports preferences have been updated from %s to %s.",
				old, player.JoinTokens(valid)))
		} else {
			ack = append(ack, "No valid sports were provided for replacement.")
		}
		ack = appendUnsupported(ack, invalid)
	}

	if len(cmd.AddSports) > 0 {
		valid, invalid := p.validateSports(cmd.AddSports)
		added := mergeSports(&pref.Sports, valid)
		switch {
		case len(added) > 0:
			changed = true
			ack = append(ack, fmt.Sprintf("Added new sports to your preferences: %s.", player.JoinTokens(added)))
			ack = append(ack, fmt.Sprintf("Your updated preferences are: %s.", player.JoinTokens(pref.Sports)))
		case len(valid) > 0:
			ack = append(ack, "No new sports were added as all were already in your preferences.")
		}
		ack = appendUnsupported(ack, invalid)
	}

	if len(cmd.RemoveSports) > 0 {
		removed, notPresent := removeSports(&pref.Sports, cmd.RemoveSports)
		if len(removed) > 0 {
			changed = true
			ack = append(ack, fmt.Sprintf("Removed: %s.", player.JoinTokens(removed)))
			ack = append(ack, fmt.Sprintf("Your updated preferences are: %s.", player.JoinTokens(pref.Sports)))
		} else if len(notPresent) > 0 {
			ack = append(ack, fmt.Sprintf("The following sports were not in your preferences: %s.", player.JoinTokens(notPresent)))
		}
	}

	if cmd.NewTime != "" {
		if _, err := schedule.ParseTimeOfDay(cmd.NewTime); err != nil {
			ack = append(ack, fmt.Sprintf("%q is not a time I can schedule. Try e.g. *10 am* or *18:30*.", cmd.NewTime))
		} else {
			old := pref.NotifyTime
			pref.NotifyTime = cmd.NewTime
			changed = true
			ack = append(ack, fmt.Sprintf("Your notification timing has been updated from %s to %s.", old, cmd.NewTime))
		}
	}

	if len(cmd.NewDays) > 0 {
		raw := strings.ToLower(strings.Join(cmd.NewDays, " "))
		if _, err := schedule.ParseFrequency(raw); err != nil {
			ack = append(ack, fmt.Sprintf("%q is not a schedule I support. Choose one of: %s.",
				raw, strings.Join(schedule.FrequencyNames(), ", ")))
		} else {
			old := pref.Frequency
			pref.Frequency = raw
			changed = true
			ack = append(ack, fmt.Sprintf("Your notification days have been updated from %s to %s.", old, raw))
		}
	}

	if !changed {
		if len(ack) == 0 {
			ack = append(ack, "No changes were made to your preferences.")
		}
		return p.sender.Deliver(ctx, to, strings.Join(ack, "\n"))
	}

	if err := p.players.SavePlayer(ctx, pref); err != nil {
		return err
	}
	if _, err := p.scheduler.Schedule(ctx, pref); err != nil {
		return err
	}
	return p.sender.Deliver(ctx, to, "Your updates have been successfully processed:\n"+strings.Join(ack, "\n"))
}

func (p *Processor) validateSports(sports []string) (valid, invalid []string) {
	for _, s := range sports {
		if _, ok := p.supported[strings.ToLower(s)]; ok {
			valid = append(valid, Title(s))
		} else {
			invalid = append(invalid, Title(s))
		}
	}
	return valid, invalid
}

func appendUnsupported(ack, invalid []string) []string {
	if len(invalid) == 0 {
		return ack
	}
	return append(ack, fmt.Sprintf("The following sports were not added as they are not supported: %s.",
		player.JoinTokens(invalid)))
}

// mergeSports appends the valid sports missing from current, returning what
// was actually added.
func mergeSports(current *[]string, valid []string) []string {
	have := make(map[string]struct{}, len(*current))
	for _, s := range *current {
		have[strings.ToLower(s)] = struct{}{}
	}
	var added []string
	for _, s := range valid {
		if _, ok := have[strings.ToLower(s)]; !ok {
			*current = append(*current, s)
			added = append(added, s)
		}
	}
	sort.Strings(added)
	return added
}

func removeSports(current *[]string, wanted []string) (removed, notPresent []string) {
	drop := make(map[string]struct{}, len(wanted))
	for _, s := range wanted {
		drop[strings.ToLower(s)] = struct{}{}
	}
	var kept []string
	seen := map[string]struct{}{}
	for _, s := range *current {
		if _, ok := drop[strings.ToLower(s)]; ok {
			removed = append(removed, Title(s))
			seen[strings.ToLower(s)] = struct{}{}
		} else {
			kept = append(kept, s)
		}
	}
	for _, s := range wanted {
		if _, ok := seen[strings.ToLower(s)]; !ok {
			notPresent = append(notPresent, Title(s))
		}
	}
	*current = kept
	return removed, notPresent
}
