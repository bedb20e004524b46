// Package scheduler runs periodic maintenance such as export cleanup and run retention.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is a named maintenance function.
type Task func(ctx context.Context) error

// Scheduler wraps a cron instance with structured logging.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration

	mu  sync.RWMutex
	ctx context.Context
}

// New constructs a scheduler. timeout bounds each task run; zero disables the bound.
func New(logger *zap.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Register adds task under a standard five-field cron spec or a descriptor such as "@hourly".
func (s *Scheduler) Register(name, spec string, task Task) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(name, task)); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("maintenance task registered", zap.String("task", name), zap.String("schedule", spec))
	return nil
}

// Start begins running registered tasks. Task contexts derive from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts scheduling and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Len reports how many tasks are registered.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) wrap(name string, task Task) func() {
	return func() {
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := task(ctx); err != nil {
			s.logger.Error("maintenance task failed", zap.String("task", name), zap.Error(err))
			return
		}
		s.logger.Debug("maintenance task completed", zap.String("task", name), zap.Duration("duration", time.Since(start)))
	}
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
