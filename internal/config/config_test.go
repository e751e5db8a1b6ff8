package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `telegram:
  token: "123:abc"
  poll_timeout: "15s"
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: ./logs/bot.log
storage:
  path: ./data/bot.db
  busy_timeout: "5s"
reminder:
  interval: "20m"
  initial_delay: "10s"
broadcast:
  times: ["09:00", "10:00", "19:00"]
fanout:
  workers: 20
  rate_per_sec: 25
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "./logs/bot.log" {
		t.Errorf("logging.file = %+v", cfg.Logging.File)
	}
	if cfg.Fanout.RatePerSec != 25 {
		t.Errorf("fanout.rate_per_sec = %d", cfg.Fanout.RatePerSec)
	}
	if got := cfg.Broadcast.TimesOrDefault(); len(got) != 3 || got[2] != "19:00" {
		t.Errorf("broadcast times = %v", got)
	}
	if m.Get() != cfg {
		t.Error("Get did not return the committed config")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	t.Parallel()
	body := sampleYAML + "reminderz:\n  interval: \"5m\"\n"
	m := NewManager(writeConfig(t, "config.yaml", body))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123:abc"},
			Storage:  StorageConfig{Path: "./bot.db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "minimal ok"},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: true},
		{name: "missing storage path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "bad interval", mutate: func(c *Config) { c.Reminder.Interval = "20 minutes" }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.Reminder.InitialDelay = "-10s" }, wantErr: true},
		{name: "bad slot", mutate: func(c *Config) { c.Broadcast.Times = []string{"9am"} }, wantErr: true},
		{name: "slot out of range", mutate: func(c *Config) { c.Broadcast.Times = []string{"24:00"} }, wantErr: true},
		{name: "good slot", mutate: func(c *Config) { c.Broadcast.Times = []string{"07:30"} }},
		{name: "negative workers", mutate: func(c *Config) { c.Fanout.Workers = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	if got := cfg.Broadcast.TimesOrDefault(); len(got) != 3 || got[0] != "09:00" {
		t.Errorf("default broadcast times = %v", got)
	}
	if got := cfg.Fanout.WorkersOrDefault(); got != DefaultWorkers {
		t.Errorf("default workers = %d", got)
	}
	d, err := ParseDurationOrDefault("reminder.interval", cfg.Reminder.Interval, 20*time.Minute)
	if err != nil || d != 20*time.Minute {
		t.Errorf("default interval = %v, %v", d, err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Errorf("trimmed duration = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Error("negative duration accepted")
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Errorf("empty duration = %v, %v", d, err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json",
		`{"telegram":{"token":"t"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"storage":{"path":"x"},"reminder":{},"broadcast":{},"fanout":{}}{}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}
