package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"herald/pkg/logx"
)

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		hour    int
		minute  int
		wantErr bool
	}{
		{raw: "09:00", hour: 9},
		{raw: "23:15", hour: 23, minute: 15},
		{raw: " 10:30 ", hour: 10, minute: 30},
		{raw: "24:00", wantErr: true},
		{raw: "12:60", wantErr: true},
		{raw: "12", wantErr: true},
		{raw: "ab:cd", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		h, m, err := parseHHMM(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHHMM(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHHMM(%q): %v", tt.raw, err)
			continue
		}
		if h != tt.hour || m != tt.minute {
			t.Errorf("parseHHMM(%q) = %d:%d, want %d:%d", tt.raw, h, m, tt.hour, tt.minute)
		}
	}
}

func TestAddDailyRejectsBadTime(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.AddDaily("drain", "25:00", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid HH:MM")
	}
}

func TestAddIntervalRejectsNonPositive(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.AddInterval("scan", 0, 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestIntervalInitialDelayFiresOnce(t *testing.T) {
	t.Parallel()
	var runs atomic.Int32
	s := New(Config{}, logx.Nop())
	err := s.AddInterval("scan", time.Hour, 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job did not fire within the initial delay window")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// The hour-long period means no second run this soon.
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestRunGuardSkipsOverlappingRuns(t *testing.T) {
	t.Parallel()
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	d := jobDef{
		name:  "slow",
		state: &runState{},
		run: func(ctx context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		},
	}

	s := New(Config{}, logx.Nop())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()

	done := make(chan struct{})
	go func() {
		s.execOne(d)
		close(done)
	}()
	<-started

	s.execOne(d) // guard makes this a no-op
	close(release)
	<-done

	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1 (overlap must be skipped)", got)
	}
}

func TestStopCancelsJobContext(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	s := New(Config{}, logx.Nop())
	err := s.AddInterval("scan", time.Hour, 0, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancelling the job")
	}
}

func TestStartRejectsBadTimezone(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Mars/Olympus"}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
