package storage

import (
	"context"
	"time"

	"herald/pkg/logx"
)

// Store is the persistence API used by the dispatch services.
type Store interface {
	// Events.
	ActiveEvents(ctx context.Context) ([]Event, error)
	MarkTierFired(ctx context.Context, eventID int64, t Tier) error
	CompleteEvent(ctx context.Context, eventID int64) error
	AddEvent(ctx context.Context, name, description string, startsAt time.Time) (int64, error)

	// Users / registrations.
	AllUserIDs(ctx context.Context) ([]int64, error)
	RegisteredUserIDs(ctx context.Context, eventID int64) ([]int64, error)
	AdminIDs(ctx context.Context) ([]int64, error)
	UpsertUser(ctx context.Context, u User) error
	SetAdmin(ctx context.Context, userID int64, admin bool) error
	Register(ctx context.Context, userID, eventID int64) error

	// Broadcast queue.
	EnqueueBroadcast(ctx context.Context, e BroadcastEntry) (int64, error)
	OldestPendingBroadcast(ctx context.Context) (*BroadcastEntry, error)
	MarkBroadcastSent(ctx context.Context, id int64) error

	Close() error
}

// Open initializes the SQLite store at cfg.Path, creating the schema on
// first use.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
