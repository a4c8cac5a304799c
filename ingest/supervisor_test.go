package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/errors"
)

func TestSupervisorRestartsFailingConsumer(t *testing.T) {
	var runs atomic.Int32
	sup := NewSupervisor("test", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("connection dropped")
	}, zap.NewNop().Sugar())
	sup.minBackoff = time.Millisecond
	sup.maxBackoff = 4 * time.Millisecond

	sup.Start(context.Background())

	assert.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	sup.Stop()
}

func TestSupervisorStopIsIdempotentAndPrompt(t *testing.T) {
	started := make(chan struct{})
	sup := NewSupervisor("test", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}, zap.NewNop().Sugar())

	sup.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		sup.Stop()
		sup.Stop() // second Stop must not panic or block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop promptly")
	}
}

func TestJitterStaysInBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, time.Second)
	}
}
