package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts both 5-field standard cron and 6-field (seconds)
// extended cron, plus descriptors like "@every 1h", matching what
// workflow schedules are authored with.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SchedulerConfig tunes the scheduler's polling cadence, concurrency,
// and logging, mirroring the shape of a worker-pool task scheduler:
// named defaults, bounded concurrent runs, a logger rather than bare
// fmt output.
type SchedulerConfig struct {
	TickInterval   time.Duration
	MaxConcurrency int
	Logger         *slog.Logger
}

// DefaultSchedulerConfig returns sane defaults for running scheduled
// workflows off-process from any interactive turn.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{TickInterval: 10 * time.Second, MaxConcurrency: 5}
}

// ScheduleLoader resolves a workflow's step definitions by name each
// time its cron schedule comes due, so edits to a workflow's steps on
// disk take effect on the next run without restarting the scheduler.
type ScheduleLoader interface {
	LoadWorkflow(name string) (*Workflow, error)
}

// Schedule binds a cron expression to a named workflow and the
// autonomous policy (if any) its runs should use.
type Schedule struct {
	Name         string
	Cron         string
	WorkflowName string
	Autonomous   *AutonomousPolicy

	schedule cron.Schedule
	nextRun  time.Time
}

// Scheduler polls a set of cron schedules and runs the due ones through
// an Engine: a ticker, a bounded worker semaphore, structured logging
// per run, graceful Stop.
type Scheduler struct {
	engine *Engine
	loader ScheduleLoader
	config SchedulerConfig
	logger *slog.Logger
	now    func() time.Time

	sem  chan struct{}
	wg   sync.WaitGroup
	stop context.CancelFunc

	mu        sync.Mutex
	schedules []*Schedule
	running   bool
}

// NewScheduler constructs a Scheduler driving engine off schedules
// resolved through loader.
func NewScheduler(engine *Engine, loader ScheduleLoader, config SchedulerConfig) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = 10 * time.Second
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "workflow-scheduler")
	}
	return &Scheduler{
		engine: engine,
		loader: loader,
		config: config,
		logger: logger,
		now:    time.Now,
		sem:    make(chan struct{}, config.MaxConcurrency),
	}
}

// Add registers a schedule. Safe to call before or after Start.
func (s *Scheduler) Add(sched Schedule) error {
	parsed, err := cronParser.Parse(sched.Cron)
	if err != nil {
		return fmt.Errorf("workflow: bad cron expression %q for %s: %w", sched.Cron, sched.Name, err)
	}
	sched.schedule = parsed
	sched.nextRun = parsed.Next(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, &sched)
	return nil
}

// Start begins the tick loop dispatching due schedules. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue()
			}
		}
	}()
	s.logger.Info("workflow scheduler started", "tick_interval", s.config.TickInterval, "max_concurrency", s.config.MaxConcurrency)
}

// Stop halts the tick loop and waits for in-flight runs to drain,
// respecting ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.stop
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runDue() {
	now := s.now()

	s.mu.Lock()
	due := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		if !now.Before(sched.nextRun) {
			sched.nextRun = sched.schedule.Next(now)
			due = append(due, sched)
		}
	}
	s.mu.Unlock()

	for _, sched := range due {
		s.dispatch(*sched)
	}
}

func (s *Scheduler) dispatch(sched Schedule) {
	select {
	case s.sem <- struct{}{}:
	default:
		s.logger.Warn("skipping scheduled run, at max concurrency", "schedule", sched.Name)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()

		wf, err := s.loader.LoadWorkflow(sched.WorkflowName)
		if err != nil {
			s.logger.Error("failed to load scheduled workflow", "schedule", sched.Name, "workflow", sched.WorkflowName, "error", err)
			return
		}

		s.logger.Info("running scheduled workflow", "schedule", sched.Name, "workflow_id", wf.ID)
		state, err := s.engine.Run(context.Background(), wf, sched.Autonomous)
		if err != nil {
			s.logger.Error("scheduled workflow run failed", "schedule", sched.Name, "workflow_id", wf.ID, "error", err)
			return
		}
		s.logger.Info("scheduled workflow run finished", "schedule", sched.Name, "workflow_id", wf.ID, "state", state)
	}()
}

// RunDueNow forces an immediate check of all schedules, primarily for
// tests that don't want to wait out a real tick interval.
func (s *Scheduler) RunDueNow() {
	s.runDue()
}
