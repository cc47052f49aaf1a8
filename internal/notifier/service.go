// Package notifier renders matched-slot sets into messages and delivers them
// over the outbound channel with a bounded retry budget.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"courtbot/internal/transport"
	"courtbot/pkg/logx"
)

// ErrDeliveryFailed is reported after the retry budget is exhausted. It never
// propagates into the scheduling engine's job state.
var ErrDeliveryFailed = errors.New("delivery failed")

type Config struct {
	// Attempts is the total send budget per message (default 3).
	Attempts int
	// RetryDelay is the fixed wait between attempts (default 5s).
	RetryDelay time.Duration
	// RatePerSec throttles outbound sends across all workers (default 3).
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	return c
}

type Service struct {
	cfg     Config
	adapter transport.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
}

// Deliver sends text to the recipient, retrying transient failures up to the
// configured attempt budget with a fixed delay. The inter-attempt wait honors
// ctx, so a shutdown never blocks on a sleeping retry. Only the calling
// worker is suspended during the wait.
func (s *Service) Deliver(ctx context.Context, to transport.Recipient, text string) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		err := s.adapter.SendText(ctx, to, text)
		if err == nil {
			s.log.Debug("message delivered", logx.String("to", to.ID), logx.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		s.log.Warn("send attempt failed", logx.String("to", to.ID), logx.Int("attempt", attempt), logx.Int("max", s.cfg.Attempts), logx.Err(err))

		if attempt >= s.cfg.Attempts {
			break
		}
		t := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		}
	}

	s.log.Error("retry budget exhausted", logx.String("to", to.ID), logx.Int("attempts", s.cfg.Attempts), logx.Err(lastErr))
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrDeliveryFailed, to.ID, s.cfg.Attempts, lastErr)
}
