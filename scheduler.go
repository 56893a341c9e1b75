package uat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// RunScheduler decides when runs happen: once, or immediately and then on every interval.
type RunScheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RegisterCallback(func(ctx context.Context) error)
	WaitForShutdown(ctx context.Context) error
	Stopped() bool
}

// IntervalScheduler implements RunScheduler. Runs never overlap; a run that
// outlasts the interval delays the next tick.
type IntervalScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	callback func(ctx context.Context) error

	running atomic.Bool
	runs    atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewIntervalScheduler(interval time.Duration, runOnce bool, logger log.Logger) *IntervalScheduler {
	return &IntervalScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (s *IntervalScheduler) RegisterCallback(callback func(ctx context.Context) error) {
	s.callback = callback
}

// Start runs the callback once synchronously. In periodic mode it then keeps
// running it every interval until Stop or ctx is done. The error of the first
// run is returned; later errors are logged.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}
	if !s.runOnce && s.interval <= 0 {
		return errors.New("periodic mode requires a positive interval")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.invoke(ctx)
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)
	if err := s.invoke(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !s.running.Load() {
					s.logger.Debug("Scheduler stopped, exiting periodic runner")
					return
				}
				s.logger.Info("Starting periodic run", "run", s.runs.Load()+1)
				if err := s.invoke(ctx); err != nil {
					s.logger.Error("Periodic run failed", "err", err)
				}
			case <-s.done:
				s.logger.Debug("Done signal received, stopping periodic runner")
				return
			case <-ctx.Done():
				s.logger.Debug("Context canceled, stopping periodic runner")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

func (s *IntervalScheduler) invoke(ctx context.Context) error {
	s.runs.Add(1)
	return s.callback(ctx)
}

// Runs returns how many times the callback has been started.
func (s *IntervalScheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *IntervalScheduler) Stop() error {
	if !s.running.Load() {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)
	close(s.done)
	return nil
}

func (s *IntervalScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the periodic goroutine has exited or ctx is done.
func (s *IntervalScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Debug("Scheduler goroutines terminated")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for scheduler to terminate", "err", ctx.Err())
		return ctx.Err()
	}
}
