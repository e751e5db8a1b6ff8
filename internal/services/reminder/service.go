// Package reminder decides which reminder tier is due for each active event
// and escalates finished events to administrators.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"herald/internal/services/fanout"
	"herald/internal/storage"
	"herald/internal/transport"
	"herald/pkg/logx"
)

const (
	// fireWindow is how long a tier stays eligible after its lead time is
	// crossed. Windows are disjoint for the configured tiers, but a poll
	// that straddles two windows still fires both.
	fireWindow = 2 * time.Hour

	// completionGrace is how long after the start an event keeps its
	// active status before admins are notified.
	completionGrace = time.Hour
)

// Store is the slice of the persistence layer the evaluator needs.
type Store interface {
	ActiveEvents(ctx context.Context) ([]storage.Event, error)
	AllUserIDs(ctx context.Context) ([]int64, error)
	RegisteredUserIDs(ctx context.Context, eventID int64) ([]int64, error)
	AdminIDs(ctx context.Context) ([]int64, error)
	MarkTierFired(ctx context.Context, eventID int64, t storage.Tier) error
	CompleteEvent(ctx context.Context, eventID int64) error
}

// Deliverer fans one message out to many recipients.
type Deliverer interface {
	Deliver(ctx context.Context, recipients []int64, send func(ctx context.Context, userID int64) error) (fanout.Report, error)
}

type Service struct {
	store  Store
	pool   Deliverer
	sender transport.Sender
	log    logx.Logger
}

func New(store Store, pool Deliverer, sender transport.Sender, log logx.Logger) *Service {
	return &Service{store: store, pool: pool, sender: sender, log: log}
}

// Scan evaluates every active event against now. Per-event errors do not
// stop the scan; they are joined into the returned error so the scheduled
// job surfaces them.
func (s *Service) Scan(ctx context.Context, now time.Time) error {
	events, err := s.store.ActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("list active events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	var errs []error
	for i := range events {
		if err := s.Evaluate(ctx, &events[i], now); err != nil {
			s.log.Error("event evaluation failed", logx.Int64("event_id", events[i].ID), logx.Err(err))
			errs = append(errs, fmt.Errorf("event %d: %w", events[i].ID, err))
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return errors.Join(errs...)
}

// Evaluate checks every tier of one event, longest lead time first, and
// fires each tier whose window matches and whose flag is still clear. It
// then performs the completion transition once the event is an hour past
// its start.
//
// ev.Fired and ev.Status are updated in place as mutations are committed,
// so a caller holding the same struct sees the post-evaluation state.
func (s *Service) Evaluate(ctx context.Context, ev *storage.Event, now time.Time) error {
	var errs []error

	diff := ev.StartsAt.Sub(now)
	for _, tier := range storage.Tiers {
		lead := tier.Lead()
		if diff > lead || diff <= lead-fireWindow {
			continue
		}
		if ev.Fired.Has(tier) {
			continue
		}
		if err := s.fireTier(ctx, ev, tier, diff); err != nil {
			errs = append(errs, fmt.Errorf("tier %s: %w", tier, err))
			continue
		}
		ev.Fired = ev.Fired.With(tier)
	}

	if ev.Status == storage.StatusActive && now.After(ev.StartsAt.Add(completionGrace)) {
		if err := s.complete(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("complete: %w", err))
		}
	}
	return errors.Join(errs...)
}

// fireTier delivers the reminder to all known users, then persists the
// tier flag. The flag is written only after delivery was scheduled: if the
// commit fails the tier stays unfired and the next poll retries it.
func (s *Service) fireTier(ctx context.Context, ev *storage.Event, tier storage.Tier, diff time.Duration) error {
	registered, err := s.store.RegisteredUserIDs(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("registered users: %w", err)
	}
	all, err := s.store.AllUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("all users: %w", err)
	}

	isRegistered := make(map[int64]bool, len(registered))
	for _, id := range registered {
		isRegistered[id] = true
	}

	text := renderReminder(ev, diff)
	rep, err := s.pool.Deliver(ctx, all, func(ctx context.Context, userID int64) error {
		opt := &transport.SendOptions{ParseMode: transport.ModeHTML, DisablePreview: true}
		msg := text
		if !isRegistered[userID] {
			msg += joinPrompt
			opt.RegisterEvent = ev.ID
		}
		return s.sender.SendText(ctx, userID, msg, opt)
	})
	if err != nil {
		return fmt.Errorf("fan out: %w", err)
	}

	if err := s.store.MarkTierFired(ctx, ev.ID, tier); err != nil {
		return fmt.Errorf("mark fired: %w", err)
	}
	s.log.Info("reminder tier fired",
		logx.Int64("event_id", ev.ID),
		logx.String("event", ev.Name),
		logx.String("tier", tier.String()),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed))
	return nil
}

// complete notifies every admin, then flips the event to completed. The
// status write comes last for the same reason as the tier flag: a failed
// commit leaves the event active so the next scan retries.
func (s *Service) complete(ctx context.Context, ev *storage.Event) error {
	admins, err := s.store.AdminIDs(ctx)
	if err != nil {
		return fmt.Errorf("admin ids: %w", err)
	}

	text := renderCompletion(ev)
	rep, err := s.pool.Deliver(ctx, admins, func(ctx context.Context, userID int64) error {
		return s.sender.SendText(ctx, userID, text, &transport.SendOptions{ParseMode: transport.ModeHTML, DisablePreview: true})
	})
	if err != nil {
		return fmt.Errorf("fan out: %w", err)
	}

	if err := s.store.CompleteEvent(ctx, ev.ID); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	ev.Status = storage.StatusCompleted
	s.log.Info("event completed",
		logx.Int64("event_id", ev.ID),
		logx.String("event", ev.Name),
		logx.Int("admins_notified", rep.Sent),
		logx.Int("failed", rep.Failed))
	return nil
}
