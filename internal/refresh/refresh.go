// Package refresh reloads the domain store on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/tgienger/taskdesk/internal/remote"
)

// Loader reloads data; *state.Store implements it
type Loader interface {
	Load(ctx context.Context) error
}

// Scheduler runs Loader.Load on a schedule. Runs are skipped while the
// previous one is still going, and while nobody is signed in.
type Scheduler struct {
	loader   Loader
	log      *slog.Logger
	schedule rcron.Schedule
	timeout  time.Duration

	mu     sync.Mutex
	cron   *rcron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	runs   int
	last   error
}

// Parse validates a schedule: a standard five-field cron expression or a
// descriptor such as "@every 5m" or "@hourly"
func Parse(spec string) (rcron.Schedule, error) {
	sched, err := rcron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return sched, nil
}

// New creates a scheduler; call Start to begin
func New(spec string, loader Loader, log *slog.Logger) (*Scheduler, error) {
	sched, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{loader: loader, log: log, schedule: sched, timeout: time.Minute}, nil
}

// Start begins running loads until ctx is cancelled or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	logger := cronLogger{s.log}
	s.cron = rcron.New(
		rcron.WithLogger(logger),
		rcron.WithChain(rcron.Recover(logger), rcron.SkipIfStillRunning(logger)),
	)
	s.cron.Schedule(s.schedule, rcron.FuncJob(func() { s.RunNow() }))
	s.cron.Start()
	s.log.Info("refresh scheduler started", "next", s.schedule.Next(time.Now()))

	go func(ctx context.Context) {
		<-ctx.Done()
		s.Stop()
	}(s.ctx)
}

// Stop halts the schedule and waits for a running load to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("refresh stop timed out waiting for load")
	}
	cancel()
	s.log.Info("refresh scheduler stopped")
}

// RunNow performs one refresh immediately
func (s *Scheduler) RunNow() error {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	err := s.loader.Load(ctx)
	switch {
	case errors.Is(err, remote.ErrAuthRequired):
		s.log.Debug("refresh skipped, not signed in")
		err = nil
	case err != nil:
		s.log.Warn("refresh failed", "error", err)
	default:
		s.log.Debug("refresh complete")
	}

	s.mu.Lock()
	s.runs++
	s.last = err
	s.mu.Unlock()
	return err
}

// Runs returns how many refreshes have completed and the last error
func (s *Scheduler) Runs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.last
}

// cronLogger adapts slog to cron's logger
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
