package ingest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Supervisor runs a long-lived consumer (a streaming or polling loop) and
// restarts it on failure with jittered, bounded exponential backoff. Stop
// is explicit via Stop() or context cancellation; there is no raw
// thread-flag polling.
type Supervisor struct {
	name string
	run  func(ctx context.Context) error
	log  *zap.SugaredLogger

	minBackoff time.Duration
	maxBackoff time.Duration
	// resetAfter: a run that survives this long resets the backoff ladder.
	resetAfter time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSupervisor creates a supervisor for the given consumer.
func NewSupervisor(name string, run func(ctx context.Context) error, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		name:       name,
		run:        run,
		log:        log,
		minBackoff: time.Second,
		maxBackoff: 2 * time.Minute,
		resetAfter: time.Minute,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the supervised loop in its own goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop signals the loop to exit and waits for it.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := s.minBackoff
	for {
		started := time.Now()
		err := s.run(ctx)

		if ctx.Err() != nil {
			s.log.Infow("supervised consumer stopped", "name", s.name)
			return
		}

		if time.Since(started) >= s.resetAfter {
			backoff = s.minBackoff
		}

		delay := jitter(backoff)
		s.log.Warnw("supervised consumer exited, restarting",
			"name", s.name, "error", err, "backoff", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// jitter returns a duration in [d/2, d).
func jitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
