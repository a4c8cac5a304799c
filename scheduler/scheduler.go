package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/growth"
	"github.com/teranos/trendspark/metrics"
)

// Job is the execution context handed to a handler.
type Job struct {
	Config        *JobConfig
	Params        map[string]any
	CorrelationID string
}

// Handler executes one job kind.
type Handler func(ctx context.Context, job *Job) error

// entry is one live trigger.
type entry struct {
	config   *JobConfig
	schedule cron.Schedule
	next     time.Time
}

// Scheduler is the service object owning the trigger registry, stores,
// failure monitor and handler registry. No package-level state: every
// dependency is held explicitly.
type Scheduler struct {
	cfg      config.SchedulerConfig
	configs  *ConfigStore
	leases   *LeaseManager
	runs     *JobRunStore
	failures *FailureMonitor
	profiles *growth.Store
	handlers map[string]Handler
	log      *zap.SugaredLogger

	mu      sync.Mutex
	entries map[int64]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler service.
func New(cfg config.SchedulerConfig, configs *ConfigStore, leases *LeaseManager,
	runs *JobRunStore, failures *FailureMonitor, profiles *growth.Store,
	handlers map[string]Handler, log *zap.SugaredLogger) *Scheduler {

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		configs:  configs,
		leases:   leases,
		runs:     runs,
		failures: failures,
		profiles: profiles,
		handlers: handlers,
		log:      log,
		entries:  make(map[int64]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start reconciles triggers and begins the ticker loop.
func (s *Scheduler) Start() error {
	if err := s.Refresh(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.run()
	s.log.Infow("scheduler started",
		"ticker_interval_seconds", s.cfg.TickerIntervalSeconds,
		"atomic_leases", s.cfg.AtomicLeases)
	return nil
}

// Stop halts the trigger dispatcher and waits for in-flight handlers.
// Leases held by handlers that outlive shutdown expire naturally.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Infow("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.TickerIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(now.UTC())
		}
	}
}

// tick fires every due entry. Each execution runs on its own goroutine so
// configs never block one another; concurrency within one config is
// bounded only by its lease limit.
func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e)
			e.next = e.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		cfg := e.config
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.Execute(s.ctx, cfg); err != nil && !errors.IsLeaseUnavailable(err) {
				// Recorded and counted already; the next cron tick retries.
				s.log.Warnw("job execution failed",
					"job_kind", cfg.JobKind, "config_id", cfg.ID, "error", err)
			}
		}()
	}
}

// Refresh reconciles the live trigger set against persisted configs:
// missing entries are added, stale ones removed, changed ones rebuilt.
// Called on start and after every config mutation.
func (s *Scheduler) Refresh() error {
	configs, err := s.configs.ListEnabled()
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	desired := make(map[int64]*JobConfig, len(configs))
	for _, c := range configs {
		desired[c.ID] = c
	}

	for id, e := range s.entries {
		c, ok := desired[id]
		if !ok {
			delete(s.entries, id)
			continue
		}
		if c.Cron != e.config.Cron {
			schedule, err := cron.ParseStandard(c.Cron)
			if err != nil {
				// Validated at save time; a parse failure here means the row
				// was mutated out of band. Drop the trigger.
				s.log.Errorw("dropping trigger with invalid cron",
					"config_id", id, "cron", c.Cron, "error", err)
				delete(s.entries, id)
				continue
			}
			e.schedule = schedule
			e.next = schedule.Next(now)
		}
		e.config = c
	}

	for id, c := range desired {
		if _, ok := s.entries[id]; ok {
			continue
		}
		schedule, err := cron.ParseStandard(c.Cron)
		if err != nil {
			s.log.Errorw("skipping config with invalid cron",
				"config_id", id, "cron", c.Cron, "error", err)
			continue
		}
		s.entries[id] = &entry{config: c, schedule: schedule, next: schedule.Next(now)}
	}

	s.log.Debugw("trigger set reconciled", "triggers", len(s.entries))
	return nil
}

// TriggerCount returns the number of live triggers.
func (s *Scheduler) TriggerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CreateConfig persists a new config and reconciles triggers.
func (s *Scheduler) CreateConfig(c *JobConfig) error {
	if err := s.configs.Create(c); err != nil {
		return err
	}
	return s.Refresh()
}

// UpdateConfig persists config changes and reconciles triggers.
func (s *Scheduler) UpdateConfig(c *JobConfig) error {
	if err := s.configs.Update(c); err != nil {
		return err
	}
	return s.Refresh()
}

// DeleteConfig removes a config and reconciles triggers.
func (s *Scheduler) DeleteConfig(id int64) error {
	if err := s.configs.Delete(id); err != nil {
		return err
	}
	return s.Refresh()
}

// SetEnabled toggles a config and reconciles triggers.
func (s *Scheduler) SetEnabled(id int64, enabled bool) error {
	if err := s.configs.SetEnabled(id, enabled); err != nil {
		return err
	}
	return s.Refresh()
}

// Execute runs one config's handler immediately: resolve handler, acquire
// a lease, run with merged parameters, then always release the lease and
// record exactly one JobRun. A lease at its limit returns
// ErrLeaseUnavailable with no side effects and no JobRun penalty.
func (s *Scheduler) Execute(ctx context.Context, cfg *JobConfig) error {
	handler, ok := s.handlers[cfg.JobKind]
	if !ok {
		return errors.NewInvalidConfigError("unknown job kind: " + cfg.JobKind)
	}

	token, err := s.leases.Acquire(cfg)
	if errors.IsLeaseUnavailable(err) {
		metrics.LeaseSkips.WithLabelValues(cfg.JobKind).Inc()
		s.log.Infow("lease unavailable, skipping run",
			"job_kind", cfg.JobKind, "config_id", cfg.ID)
		return err
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := s.leases.Release(cfg.ID, token); err != nil {
			s.log.Warnw("failed to release lease",
				"config_id", cfg.ID, "error", err)
		}
	}()

	params, err := s.mergedParams(cfg)
	if err != nil {
		return err
	}

	job := &Job{
		Config:        cfg,
		Params:        params,
		CorrelationID: uuid.New().String(),
	}

	started := time.Now()
	runErr := handler(ctx, job)
	duration := time.Since(started)

	run := &JobRun{
		JobKind:       cfg.JobKind,
		ConfigID:      &cfg.ID,
		Status:        RunStatusSuccess,
		RunAt:         started.UTC(),
		DurationMS:    float64(duration.Milliseconds()),
		CorrelationID: job.CorrelationID,
	}
	if runErr != nil {
		run.Status = RunStatusError
		run.Detail = runErr.Error()
	}
	if err := s.runs.Record(run); err != nil {
		s.log.Errorw("failed to record job run",
			"job_kind", cfg.JobKind, "error", err)
	}

	metrics.JobDuration.WithLabelValues(cfg.JobKind).Observe(duration.Seconds())
	metrics.JobRuns.WithLabelValues(cfg.JobKind, run.Status).Inc()

	if runErr != nil {
		s.failures.RecordFailure(ctx, cfg.JobKind, runErr.Error(), time.Now().UTC())
		return runErr
	}
	s.failures.RecordSuccess(cfg.JobKind)
	return nil
}

// mergedParams overlays the config's explicit parameters onto the linked
// targeting profile's defaults.
func (s *Scheduler) mergedParams(cfg *JobConfig) (map[string]any, error) {
	params := make(map[string]any)

	if cfg.GrowthProfileID != nil {
		profile, err := s.profiles.Get(*cfg.GrowthProfileID)
		if err != nil && !errors.IsNotFoundError(err) {
			return nil, err
		}
		if err == nil {
			if len(profile.Keywords) > 0 {
				params["keywords"] = profile.Keywords
			}
			if len(profile.Watchlist) > 0 {
				params["watchlist"] = profile.Watchlist
			}
			if profile.Niche != "" {
				params["niche"] = profile.Niche
			}
		}
	}

	for k, v := range cfg.Parameters {
		params[k] = v
	}
	return params, nil
}
