// Package cron runs the attendant's maintenance jobs on cron expressions.
package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sushiaki/sorabot/pkg/logger"
)

// JobFunc runs one job occurrence. now is the minute the job was due.
type JobFunc func(ctx context.Context, now time.Time) error

type Job struct {
	Name string
	Expr string
	Run  JobFunc
}

// Scheduler evaluates every job once per wall-clock minute. Jobs run
// sequentially on the scheduler goroutine.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	lastRun map[string]time.Time
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler() *Scheduler {
	return NewSchedulerWithClock(time.Now)
}

func NewSchedulerWithClock(now func() time.Time) *Scheduler {
	return &Scheduler{
		lastRun: make(map[string]time.Time),
		now:     now,
	}
}

// Add registers a job. An empty expression disables it.
func (s *Scheduler) Add(name, expr string, run JobFunc) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		logger.InfoCF("cron", "Job disabled", map[string]interface{}{"job": name})
		return nil
	}
	g := gronx.New()
	if !g.IsValid(expr) {
		return fmt.Errorf("cron job %s: invalid expression %q", name, expr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Name == name {
			return fmt.Errorf("cron job %s already registered", name)
		}
	}
	s.jobs = append(s.jobs, Job{Name: name, Expr: expr, Run: run})
	return nil
}

func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Job(nil), s.jobs...)
}

// RunDue runs every job due at the minute containing now and returns the
// names that ran. A job runs at most once per minute.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []string {
	minute := now.Truncate(time.Minute)
	g := gronx.New()

	s.mu.Lock()
	var due []Job
	for _, j := range s.jobs {
		if last, ok := s.lastRun[j.Name]; ok && !minute.After(last) {
			continue
		}
		ok, err := g.IsDue(j.Expr, minute)
		if err != nil {
			logger.WarnCF("cron", "Failed to evaluate job schedule", map[string]interface{}{
				"job":   j.Name,
				"error": err.Error(),
			})
			continue
		}
		if ok {
			s.lastRun[j.Name] = minute
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	ran := make([]string, 0, len(due))
	for _, j := range due {
		if err := j.Run(ctx, minute); err != nil {
			logger.ErrorCF("cron", "Job failed", map[string]interface{}{
				"job":   j.Name,
				"error": err.Error(),
			})
		}
		ran = append(ran, j.Name)
	}
	return ran
}

// Start ticks at every minute boundary until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	logger.InfoCF("cron", "Scheduler started", map[string]interface{}{"jobs": len(s.Jobs())})
	go s.loop(ctx, done)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := s.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunDue(ctx, s.now())
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.InfoC("cron", "Scheduler stopped")
}
