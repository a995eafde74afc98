// Package scheduler repeats check runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunFunc performs one run. ctx is cancelled when the scheduler stops.
type RunFunc func(ctx context.Context)

// Scheduler runs a RunFunc on a cron schedule. A run that is still going when
// the next one is due causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	entryID cron.EntryID
	run     RunFunc
	logger  *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	runs   int
}

// New creates a scheduler. spec is a standard 5-field cron expression or a
// descriptor such as "@hourly" or "@every 5m".
func New(spec string, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if run == nil {
		return nil, fmt.Errorf("scheduler: run function is required")
	}

	cl := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		spec:   spec,
		run:    run,
		logger: logger,
	}

	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", s.spec), zap.Time("next_run", s.Next()))
}

// Stop cancels the running run, if any, and waits for it to return.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// Next returns the time of the next scheduled run.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Runs returns how many runs have started.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	if ctx == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.runs++
	n := s.runs
	s.mu.Unlock()

	s.logger.Info("scheduled run starting", zap.Int("run", n))
	start := time.Now()
	s.run(ctx)
	s.logger.Info("scheduled run finished",
		zap.Int("run", n),
		zap.Duration("duration", time.Since(start)),
		zap.Time("next_run", s.Next()))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
