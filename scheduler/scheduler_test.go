package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/errors"
	"github.com/teranos/trendspark/growth"
	qtesting "github.com/teranos/trendspark/internal/testing"
	"github.com/teranos/trendspark/notify"
)

type schedulerFixture struct {
	scheduler *Scheduler
	configs   *ConfigStore
	leases    *LeaseManager
	runs      *JobRunStore
	profiles  *growth.Store
	calls     []*Job
}

func newSchedulerFixture(t *testing.T, handler Handler) *schedulerFixture {
	t.Helper()
	db := qtesting.CreateTestDB(t)
	log := zap.NewNop().Sugar()

	f := &schedulerFixture{
		configs:  NewConfigStore(db),
		leases:   NewLeaseManager(db, false, log),
		runs:     NewJobRunStore(db),
		profiles: growth.NewStore(db),
	}

	recording := func(ctx context.Context, job *Job) error {
		f.calls = append(f.calls, job)
		if handler != nil {
			return handler(ctx, job)
		}
		return nil
	}
	handlers := map[string]Handler{
		JobKindIngestRank: recording,
		JobKindGenReplies: recording,
		JobKindDailyIdeas: recording,
	}

	failures := NewFailureMonitor(3, 30*time.Minute, notify.NopSender{}, log)
	f.scheduler = New(config.SchedulerConfig{TickerIntervalSeconds: 1},
		f.configs, f.leases, f.runs, failures, f.profiles, handlers, log)
	return f
}

func TestExecuteRecordsSuccessRun(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	cfg := newIngestConfig()
	require.NoError(t, f.configs.Create(cfg))

	require.NoError(t, f.scheduler.Execute(context.Background(), cfg))
	require.Len(t, f.calls, 1)
	assert.NotEmpty(t, f.calls[0].CorrelationID)
	assert.Equal(t, float64(15), f.calls[0].Params["max_x"])

	runs, err := f.runs.Recent(JobKindIngestRank, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusSuccess, runs[0].Status)
	assert.Equal(t, f.calls[0].CorrelationID, runs[0].CorrelationID)

	// The lease is released after the run.
	active, err := f.leases.ActiveCount(cfg.ID)
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestExecuteRecordsFailureRun(t *testing.T) {
	f := newSchedulerFixture(t, func(context.Context, *Job) error {
		return errors.New("handler exploded")
	})

	cfg := newIngestConfig()
	require.NoError(t, f.configs.Create(cfg))

	err := f.scheduler.Execute(context.Background(), cfg)
	require.Error(t, err)

	runs, err := f.runs.Recent(JobKindIngestRank, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusError, runs[0].Status)
	assert.Contains(t, runs[0].Detail, "handler exploded")

	assert.Equal(t, 1, f.scheduler.failures.ConsecutiveFailures(JobKindIngestRank))
}

func TestExecuteSkipsWithoutJobRunWhenLeaseHeld(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	cfg := newIngestConfig()
	require.NoError(t, f.configs.Create(cfg))

	// Hold the single lease slot.
	token, err := f.leases.Acquire(cfg)
	require.NoError(t, err)
	defer f.leases.Release(cfg.ID, token)

	err = f.scheduler.Execute(context.Background(), cfg)
	require.True(t, errors.IsLeaseUnavailable(err))
	assert.Empty(t, f.calls)

	// A skipped run leaves no audit row.
	runs, err := f.runs.Recent(JobKindIngestRank, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecuteRejectsUnknownKind(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	cfg := newIngestConfig()
	require.NoError(t, f.configs.Create(cfg))
	cfg.JobKind = "mystery_job"

	err := f.scheduler.Execute(context.Background(), cfg)
	assert.Error(t, err)
	assert.Empty(t, f.calls)
}

func TestProfileParamsMergeUnderConfigOverrides(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	profile := &growth.Profile{
		Name:      "ai niche",
		Niche:     "artificial intelligence",
		Keywords:  []string{"llm", "agents"},
		Watchlist: []string{"karpathy"},
	}
	require.NoError(t, f.profiles.Create(profile))

	cfg := newIngestConfig()
	cfg.GrowthProfileID = &profile.ID
	cfg.Parameters = map[string]any{"max_x": 25, "niche": "robots"}
	require.NoError(t, f.configs.Create(cfg))

	require.NoError(t, f.scheduler.Execute(context.Background(), cfg))
	require.Len(t, f.calls, 1)

	params := f.calls[0].Params
	assert.Equal(t, []string{"llm", "agents"}, params["keywords"])
	assert.Equal(t, []string{"karpathy"}, params["watchlist"])
	// Explicit config parameters win over the profile defaults.
	assert.Equal(t, "robots", params["niche"])
	assert.Equal(t, float64(25), params["max_x"])
}

func TestRefreshReconcilesTriggers(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	first := newIngestConfig()
	require.NoError(t, f.scheduler.CreateConfig(first))
	assert.Equal(t, 1, f.scheduler.TriggerCount())

	second := newIngestConfig()
	second.Name = "second ingest"
	require.NoError(t, f.scheduler.CreateConfig(second))
	assert.Equal(t, 2, f.scheduler.TriggerCount())

	require.NoError(t, f.scheduler.SetEnabled(first.ID, false))
	assert.Equal(t, 1, f.scheduler.TriggerCount())

	require.NoError(t, f.scheduler.SetEnabled(first.ID, true))
	assert.Equal(t, 2, f.scheduler.TriggerCount())

	require.NoError(t, f.scheduler.DeleteConfig(second.ID))
	assert.Equal(t, 1, f.scheduler.TriggerCount())
}

func TestTickFiresDueEntries(t *testing.T) {
	f := newSchedulerFixture(t, nil)

	cfg := newIngestConfig()
	require.NoError(t, f.scheduler.CreateConfig(cfg))

	// Force the entry due and tick manually.
	f.scheduler.mu.Lock()
	f.scheduler.entries[cfg.ID].next = time.Now().UTC().Add(-time.Second)
	f.scheduler.mu.Unlock()

	f.scheduler.tick(time.Now().UTC())
	f.scheduler.wg.Wait()

	require.Len(t, f.calls, 1)

	// The next fire time moved forward; an immediate second tick is a no-op.
	f.scheduler.tick(time.Now().UTC())
	f.scheduler.wg.Wait()
	assert.Len(t, f.calls, 1)
}

func TestStartStop(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	require.NoError(t, f.scheduler.Start())
	f.scheduler.Stop()
}
