package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"herald/pkg/logx"
)

func TestDeliverIsolatesFailures(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 4}, logx.Nop())

	var attempted sync.Map
	rep, err := p.Deliver(context.Background(), []int64{1, 2, 3, 4, 5},
		func(ctx context.Context, id int64) error {
			attempted.Store(id, true)
			if id == 3 {
				return errors.New("blocked by recipient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if rep.Total != 5 || rep.Sent != 4 || rep.Failed != 1 {
		t.Fatalf("report = %+v, want total 5 sent 4 failed 1", rep)
	}
	for _, id := range []int64{1, 2, 3, 4, 5} {
		if _, ok := attempted.Load(id); !ok {
			t.Fatalf("recipient %d never attempted", id)
		}
	}
}

func TestDeliverRespectsWorkerCap(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 2}, logx.Nop())

	var inflight, peak atomic.Int64
	release := make(chan struct{})

	done := make(chan Report, 1)
	go func() {
		rep, _ := p.Deliver(context.Background(), seq(10),
			func(ctx context.Context, id int64) error {
				cur := inflight.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				<-release
				inflight.Add(-1)
				return nil
			})
		done <- rep
	}()

	// Let the pool saturate, then release everyone.
	time.Sleep(50 * time.Millisecond)
	close(release)

	rep := <-done
	if rep.Sent != 10 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak in-flight = %d, cap is 2", got)
	}
}

func TestDeliverEmptyRecipients(t *testing.T) {
	t.Parallel()
	p := New(Config{}, logx.Nop())
	rep, err := p.Deliver(context.Background(), nil, func(ctx context.Context, id int64) error {
		t.Fatal("send called with no recipients")
		return nil
	})
	if err != nil || rep.Total != 0 {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
}

func TestDeliverCancelledContext(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 1}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var calls atomic.Int64

	rep, err := func() (Report, error) {
		go func() {
			<-started
			cancel()
		}()
		return p.Deliver(ctx, seq(50), func(ctx context.Context, id int64) error {
			if calls.Add(1) == 1 {
				close(started)
				// hold the only slot until cancellation propagates
				<-ctx.Done()
			}
			return nil
		})
	}()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rep.Sent+rep.Failed >= 50 {
		t.Fatalf("report %+v suggests nothing was cancelled", rep)
	}
}

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}
