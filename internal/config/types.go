package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultWorkers caps concurrent deliveries when fanout.workers is omitted.
const DefaultWorkers = 20

// DefaultBroadcastTimes are the daily queue drain slots used when
// broadcast.times is omitted.
var DefaultBroadcastTimes = []string{"09:00", "10:00", "19:00"}

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminder  ReminderConfig  `json:"reminder"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Fanout    FanoutConfig    `json:"fanout"`

	// Timezone for daily broadcast slots. IANA name; empty means Local.
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string passed to sqlite.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ReminderConfig controls the periodic event scan.
//
// All durations are Go duration strings (e.g. "10s", "20m").
type ReminderConfig struct {
	Interval     string `json:"interval,omitempty"`      // default "20m"
	InitialDelay string `json:"initial_delay,omitempty"` // default "10s"
}

// BroadcastConfig controls when the outbound queue is drained. Each slot is
// "HH:MM" in the configured timezone; one pending entry goes out per slot.
type BroadcastConfig struct {
	Times []string `json:"times,omitempty"`
}

// FanoutConfig bounds concurrent sends during mass delivery.
// rate_per_sec = 0 disables rate limiting.
type FanoutConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

func (b BroadcastConfig) TimesOrDefault() []string {
	if len(b.Times) == 0 {
		return DefaultBroadcastTimes
	}
	return b.Times
}

func (f FanoutConfig) WorkersOrDefault() int {
	if f.Workers <= 0 {
		return DefaultWorkers
	}
	return f.Workers
}

// Validate rejects configs that would fail at wiring time: a missing token,
// malformed durations, malformed broadcast slots. Called on initial load and
// before every hot-reload publish.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"reminder.interval", c.Reminder.Interval},
		{"reminder.initial_delay", c.Reminder.InitialDelay},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	for _, t := range c.Broadcast.Times {
		if !validHHMM(t) {
			return fmt.Errorf("broadcast.times: invalid slot %q, expected HH:MM", t)
		}
	}
	if c.Fanout.Workers < 0 {
		return fmt.Errorf("fanout.workers must be >= 0")
	}
	if c.Fanout.RatePerSec < 0 {
		return fmt.Errorf("fanout.rate_per_sec must be >= 0")
	}
	return nil
}

// ParseDurationField parses a Go duration string config field. Empty means
// "use the default" and parses to zero without error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

func validHHMM(s string) bool {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return false
	}
	return true
}
