package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"herald/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Moscow"; empty means Local
}

// Job is one unit of scheduled work. The context carries the scheduler's
// lifetime; a job should return promptly once it is cancelled.
type Job func(ctx context.Context) error

type jobDef struct {
	name  string
	spec  string        // cron spec, empty for interval jobs
	every time.Duration // interval jobs only
	delay time.Duration // first fire offset for interval jobs
	run   Job
	state *runState
}

// runState is shared between cron invocations of the same definition so a
// slow run suppresses the next tick instead of stacking.
type runState struct {
	mu      sync.Mutex
	running bool
}

func (r *runState) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *runState) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddDaily registers a job firing every day at the given wall-clock time in
// the scheduler timezone. atHHMM must be "HH:MM" (24-hour).
func (s *Service) AddDaily(name, atHHMM string, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, jobDef{
		name:  name,
		spec:  fmt.Sprintf("%d %d * * *", m, h),
		run:   job,
		state: &runState{},
	})
	return nil
}

// AddInterval registers a job firing every `every`, with the first run after
// `delay` instead of a full period. A short delay gets the first pass done
// right after startup.
func (s *Service) AddInterval(name string, every, delay time.Duration, job Job) error {
	if every <= 0 {
		return fmt.Errorf("interval for %q must be positive, got %s", name, every)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, jobDef{
		name:  name,
		every: every,
		delay: delay,
		run:   job,
		state: &runState{},
	})
	return nil
}

// Start launches the cron loop and the interval timers. Definitions added
// after Start are ignored until the next Start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return errors.New("scheduler already started")
	}

	loc, err := s.loadLocation()
	if err != nil {
		return err
	}
	s.loc = loc
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for i := range s.defs {
		d := s.defs[i]
		if d.spec != "" {
			if _, err := s.c.AddFunc(d.spec, func() { s.execOne(d) }); err != nil {
				s.cancel()
				s.c = nil
				return fmt.Errorf("register %q: %w", d.name, err)
			}
			continue
		}
		s.wg.Add(1)
		go s.intervalLoop(d)
	}

	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("jobs", len(s.defs)), logx.String("tz", loc.String()))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// intervalLoop drives one interval definition: a one-shot timer for the
// initial delay, then a steady ticker.
func (s *Service) intervalLoop(d jobDef) {
	defer s.wg.Done()

	first := time.NewTimer(d.delay)
	select {
	case <-s.ctx.Done():
		first.Stop()
		return
	case <-first.C:
	}
	s.execOne(d)

	tick := time.NewTicker(d.every)
	defer tick.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-tick.C:
			s.execOne(d)
		}
	}
}

func (s *Service) execOne(d jobDef) {
	if !d.state.tryAcquire() {
		s.log.Warn("previous run still in progress, skipping", logx.String("job", d.name))
		return
	}
	defer d.state.release()

	start := time.Now()
	if err := d.run(s.ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error("job failed",
			logx.String("job", d.name),
			logx.Duration("took", time.Since(start)),
			logx.Err(err))
		return
	}
	s.log.Debug("job done",
		logx.String("job", d.name), logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocation() (*time.Location, error) {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
