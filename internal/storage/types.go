package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Tier is one reminder lead-time bucket. Order matters: evaluation walks
// tiers from the longest lead time to the shortest.
type Tier uint8

const (
	TierWeek Tier = iota
	TierThreeDays
	TierDay
	TierSevenHours
	TierOneHour

	tierCount
)

// Tiers lists all reminder tiers, longest lead time first.
var Tiers = [...]Tier{TierWeek, TierThreeDays, TierDay, TierSevenHours, TierOneHour}

// Lead returns how long before an event's start this tier fires.
func (t Tier) Lead() time.Duration {
	switch t {
	case TierWeek:
		return 7 * 24 * time.Hour
	case TierThreeDays:
		return 3 * 24 * time.Hour
	case TierDay:
		return 24 * time.Hour
	case TierSevenHours:
		return 7 * time.Hour
	case TierOneHour:
		return 4 * time.Hour
	default:
		return 0
	}
}

func (t Tier) String() string {
	switch t {
	case TierWeek:
		return "week"
	case TierThreeDays:
		return "three_days"
	case TierDay:
		return "day"
	case TierSevenHours:
		return "seven_hours"
	case TierOneHour:
		return "one_hour"
	default:
		return "unknown"
	}
}

// TierSet is a bitmask of fired tiers. A tier can only ever be added;
// nothing removes bits from a set once persisted.
type TierSet uint8

func (s TierSet) Has(t Tier) bool    { return s&(1<<t) != 0 }
func (s TierSet) With(t Tier) TierSet { return s | 1<<t }

type EventStatus string

const (
	StatusActive    EventStatus = "active"
	StatusCompleted EventStatus = "completed"
)

type Event struct {
	ID             int64
	Name           string
	Description    string
	StartsAt       time.Time
	Status         EventStatus
	Fired          TierSet
	WelcomeVideoID string
}

// MediaKind selects the delivery call used for a broadcast payload.
type MediaKind string

const (
	MediaText      MediaKind = "text"
	MediaPhoto     MediaKind = "photo"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaVideo     MediaKind = "video"
)

// BroadcastEntry is one queued admin-authored message. SentAt is set exactly
// once; a sent entry is never reconsidered for delivery.
type BroadcastEntry struct {
	ID        int64
	Text      string
	MediaID   string
	Kind      MediaKind
	CreatedAt time.Time
	SentAt    time.Time // zero while pending
}

func (e BroadcastEntry) Sent() bool { return !e.SentAt.IsZero() }

type User struct {
	ID        int64
	FirstName string
	LastName  string
	Admin     bool
}
