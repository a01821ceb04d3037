package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/logger"
	"github.com/klu/travelmanagement/internal/models"
)

// Retry configuration constants
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Job names
const (
	JobHeartbeat = "heartbeat"
	JobPurge     = "purge"
)

// Scheduler runs the housekeeping jobs of a running context
type Scheduler struct {
	store      db.Store
	instanceID string
	config     config.SchedulerConfig
	log        *logger.Logger

	MaxRetries int
	RetryDelay time.Duration

	cron    *cron.Cron
	jobs    map[string]func(context.Context) error
	entries map[string]cron.EntryID
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
	now     func() time.Time
}

// New creates a new scheduler for the given instance
func New(store db.Store, instanceID string, cfg config.SchedulerConfig, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Scheduler{
		store:      store,
		instanceID: instanceID,
		config:     cfg,
		log:        log,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		entries:    make(map[string]cron.EntryID),
		now:        time.Now,
	}
	s.jobs = map[string]func(context.Context) error{
		JobHeartbeat: s.heartbeat,
		JobPurge:     s.purge,
	}
	return s
}

// Start registers the jobs and starts the cron runner
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New()
	specs := map[string]string{
		JobHeartbeat: s.config.HeartbeatCron,
		JobPurge:     s.config.PurgeCron,
	}
	entries := make(map[string]cron.EntryID, len(specs))
	for name, spec := range specs {
		id, err := s.register(jobCtx, c, name, spec)
		if err != nil {
			cancel()
			return err
		}
		entries[name] = id
	}

	c.Start()
	s.cron = c
	s.entries = entries
	s.cancel = cancel
	s.running = true

	s.log.Info("Scheduler started with %d jobs", len(entries))
	return nil
}

// register registers a job with cron
func (s *Scheduler) register(ctx context.Context, c *cron.Cron, name, spec string) (cron.EntryID, error) {
	job := s.jobs[name]
	id, err := c.AddFunc(spec, func() {
		if err := job(ctx); err != nil {
			s.log.Error("Job %s failed: %v", name, err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add cron job %s (%q): %w", name, spec, err)
	}

	s.log.Debug("Registered job %s with cron expression: %s", name, spec)
	return id, nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false

	s.log.Info("Scheduler stopped")
}

// Reload restarts the scheduler
func (s *Scheduler) Reload(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// Running reports whether the scheduler is started
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Jobs returns the registered job names, sorted
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns when the job runs next; zero if the scheduler is stopped
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[name]
	if !s.running || !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// RunNow executes a job immediately
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job: %s", name)
	}
	return job(ctx)
}

// heartbeat touches the instance row, retrying transient failures
func (s *Scheduler) heartbeat(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		err := s.store.TouchInstance(ctx, s.instanceID, s.now())
		if err == nil {
			if attempt > 1 {
				s.log.Info("Heartbeat succeeded on attempt %d after %d previous failures", attempt, attempt-1)
			}
			return nil
		}

		lastErr = err
		s.log.Warning("Heartbeat attempt %d/%d failed: %v", attempt, s.MaxRetries, err)

		// Don't wait after the last attempt
		if attempt < s.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.RetryDelay):
			}
		}
	}

	event := &models.LifecycleEvent{
		InstanceID: s.instanceID,
		Kind:       models.EventHeartbeatFailed,
		Component:  "scheduler",
		Detail:     lastErr.Error(),
	}
	if err := s.store.RecordEvent(ctx, event); err != nil {
		s.log.Debug("Could not record heartbeat failure: %v", err)
	}
	return fmt.Errorf("heartbeat failed after %d attempts, last error: %w", s.MaxRetries, lastErr)
}

// purge deletes instances stopped longer ago than the retention period
func (s *Scheduler) purge(ctx context.Context) error {
	before := s.now().Add(-s.config.Retention)
	purged, err := s.store.PurgeStoppedInstances(ctx, before)
	if err != nil {
		return fmt.Errorf("failed to purge instances: %w", err)
	}
	if purged == 0 {
		return nil
	}

	s.log.Info("Purged %d instances stopped before %s", purged, before.Format(time.RFC3339))
	return s.store.RecordEvent(ctx, &models.LifecycleEvent{
		InstanceID: s.instanceID,
		Kind:       models.EventPurged,
		Component:  "scheduler",
		Detail:     fmt.Sprintf("%d instances", purged),
	})
}
