// Package broadcast drains the durable outbound queue: one entry per
// scheduled trigger, delivered to every known user.
package broadcast

import (
	"context"
	"fmt"

	"herald/internal/services/fanout"
	"herald/internal/storage"
	"herald/internal/transport"
	"herald/pkg/logx"
	"herald/pkg/tgui"
)

// Store is the slice of the persistence layer the drainer needs.
type Store interface {
	AllUserIDs(ctx context.Context) ([]int64, error)
	OldestPendingBroadcast(ctx context.Context) (*storage.BroadcastEntry, error)
	MarkBroadcastSent(ctx context.Context, id int64) error
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

// DrainOne takes the oldest pending entry, fans it out to all users, and
// marks it sent. Draining a single entry per trigger caps broadcasts at one
// message per user per slot, whatever the queue depth.
//
// The sent marker is written after the fan-out finished, regardless of
// per-recipient outcomes; only a failure to schedule the fan-out at all
// leaves the entry pending. Returns false when the queue was empty.
func (s *Service) DrainOne(ctx context.Context) (bool, error) {
	entry, err := s.store.OldestPendingBroadcast(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch pending broadcast: %w", err)
	}
	if entry == nil {
		s.log.Debug("broadcast queue empty")
		return false, nil
	}

	send, err := s.sendFunc(entry)
	if err != nil {
		// A malformed entry would block the queue head forever; drop it.
		s.log.Error("dropping malformed broadcast entry",
			logx.Int64("broadcast_id", entry.ID), logx.Err(err))
		if err := s.store.MarkBroadcastSent(ctx, entry.ID); err != nil {
			return false, fmt.Errorf("drop malformed entry: %w", err)
		}
		return true, nil
	}

	users, err := s.store.AllUserIDs(ctx)
	if err != nil {
		return false, fmt.Errorf("list users: %w", err)
	}

	rep, err := s.pool.Deliver(ctx, users, send)
	if err != nil {
		return false, fmt.Errorf("fan out: %w", err)
	}

	if err := s.store.MarkBroadcastSent(ctx, entry.ID); err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	s.log.Info("broadcast delivered",
		logx.Int64("broadcast_id", entry.ID),
		logx.String("kind", string(entry.Kind)),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed))
	return true, nil
}

// sendFunc builds the shared per-recipient delivery call for the entry's
// media kind.
func (s *Service) sendFunc(e *storage.BroadcastEntry) (func(ctx context.Context, userID int64) error, error) {
	opt := &transport.SendOptions{ParseMode: transport.ModeHTML, DisablePreview: true}
	text := tgui.TruncRunes(e.Text, tgui.MaxMessageLen)
	caption := tgui.TruncRunes(e.Text, tgui.MaxCaptionLen)
	switch e.Kind {
	case storage.MediaText:
		return func(ctx context.Context, userID int64) error {
			return s.sender.SendText(ctx, userID, text, opt)
		}, nil
	case storage.MediaPhoto:
		return func(ctx context.Context, userID int64) error {
			return s.sender.SendPhoto(ctx, userID, e.MediaID, caption, opt)
		}, nil
	case storage.MediaVoice:
		return func(ctx context.Context, userID int64) error {
			return s.sender.SendVoice(ctx, userID, e.MediaID, caption, opt)
		}, nil
	case storage.MediaVideoNote:
		return func(ctx context.Context, userID int64) error {
			return s.sender.SendVideoNote(ctx, userID, e.MediaID, opt)
		}, nil
	case storage.MediaVideo:
		return func(ctx context.Context, userID int64) error {
			return s.sender.SendVideo(ctx, userID, e.MediaID, caption, opt)
		}, nil
	default:
		return nil, fmt.Errorf("unknown media kind %q", e.Kind)
	}
}
