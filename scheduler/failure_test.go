package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	messages   []string
	categories []string
}

func (r *recordingSender) Send(_ context.Context, message, category string, _ map[string]any) bool {
	r.messages = append(r.messages, message)
	r.categories = append(r.categories, category)
	return true
}

func TestEscalationFiresOnceAtThreshold(t *testing.T) {
	sender := &recordingSender{}
	monitor := NewFailureMonitor(3, 30*time.Minute, sender, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	assert.False(t, monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now))
	assert.False(t, monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now.Add(time.Minute)))
	assert.True(t, monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now.Add(2*time.Minute)))

	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "3 times in a row")
	assert.Contains(t, sender.messages[0], "boom")
	assert.Equal(t, "job_failure", sender.categories[0])
}

func TestCooldownSuppressesRepeatEscalation(t *testing.T) {
	sender := &recordingSender{}
	monitor := NewFailureMonitor(3, 30*time.Minute, sender, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now)
	}
	require.Len(t, sender.messages, 1)

	// Failures keep accumulating inside the cooldown without escalating.
	assert.False(t, monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now.Add(10*time.Minute)))
	assert.False(t, monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now.Add(29*time.Minute)))
	assert.Len(t, sender.messages, 1)

	// Past the cooldown, one more escalation.
	assert.True(t, monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now.Add(31*time.Minute)))
	assert.Len(t, sender.messages, 2)
	assert.Contains(t, sender.messages[1], "6 times in a row")
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	sender := &recordingSender{}
	monitor := NewFailureMonitor(3, 30*time.Minute, sender, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now)
	monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now)
	monitor.RecordSuccess(JobKindIngestRank)
	assert.Equal(t, 0, monitor.ConsecutiveFailures(JobKindIngestRank))

	monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now)
	monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now)
	assert.Empty(t, sender.messages)
}

func TestFailureCountsAreIndependentPerKind(t *testing.T) {
	sender := &recordingSender{}
	monitor := NewFailureMonitor(2, time.Hour, sender, zap.NewNop().Sugar())
	ctx := context.Background()
	now := time.Now().UTC()

	monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now)
	monitor.RecordFailure(ctx, JobKindGenReplies, "boom", now)
	assert.Empty(t, sender.messages)

	assert.True(t, monitor.RecordFailure(ctx, JobKindIngestRank, "boom", now))
	assert.Equal(t, 1, monitor.ConsecutiveFailures(JobKindGenReplies))
}
