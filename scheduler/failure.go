package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/internal/util"
	"github.com/teranos/trendspark/notify"
)

// FailureMonitor tracks consecutive failures per job kind and escalates
// with a cooldown so a persistently failing job surfaces once, not as a
// notification storm.
type FailureMonitor struct {
	threshold int
	cooldown  time.Duration
	notifier  notify.Sender
	log       *zap.SugaredLogger

	mu            sync.Mutex
	consecutive   map[string]int
	lastEscalated map[string]time.Time
}

// NewFailureMonitor creates a failure monitor.
func NewFailureMonitor(threshold int, cooldown time.Duration, notifier notify.Sender, log *zap.SugaredLogger) *FailureMonitor {
	return &FailureMonitor{
		threshold:     threshold,
		cooldown:      cooldown,
		notifier:      notifier,
		log:           log,
		consecutive:   make(map[string]int),
		lastEscalated: make(map[string]time.Time),
	}
}

// RecordSuccess resets the consecutive counter for the kind.
func (m *FailureMonitor) RecordSuccess(jobKind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutive[jobKind] = 0
}

// RecordFailure increments the counter and escalates once the threshold
// is reached, at most once per cooldown window per kind. Returns whether
// an escalation fired.
func (m *FailureMonitor) RecordFailure(ctx context.Context, jobKind, detail string, now time.Time) bool {
	m.mu.Lock()
	m.consecutive[jobKind]++
	count := m.consecutive[jobKind]

	if count < m.threshold {
		m.mu.Unlock()
		return false
	}
	if last, ok := m.lastEscalated[jobKind]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		return false
	}
	m.lastEscalated[jobKind] = now
	m.mu.Unlock()

	message := fmt.Sprintf("⚠️ Job %q has failed %d times in a row.\nLast error: %s",
		jobKind, count, util.Truncate(detail, detailLimit))
	delivered := m.notifier.Send(ctx, message, "job_failure", map[string]any{
		"job_kind":             jobKind,
		"consecutive_failures": count,
	})
	if !delivered {
		m.log.Warnw("failure escalation delivery degraded", "job_kind", jobKind)
	}
	m.log.Errorw("job failure threshold reached",
		"job_kind", jobKind, "consecutive_failures", count)
	return true
}

// ConsecutiveFailures returns the current counter for a kind.
func (m *FailureMonitor) ConsecutiveFailures(jobKind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutive[jobKind]
}
