// Package cleanup garbage-collects expired sessions, authorization codes
// and refresh tokens.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/notelab/notelab/backend/idp-service/pkg/logger"
	"github.com/notelab/notelab/backend/idp-service/pkg/metrics"
)

// Expirer is the slice of a store the job needs: delete everything expired
// before now, report how many went.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Job runs once at start, then on a fixed interval until stopped. Failures
// are logged, never escalated: a broken run must not block the next tick.
type Job struct {
	sessions Expirer
	codes    Expirer
	refresh  Expirer
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(sessions, codes, refresh Expirer, interval time.Duration) *Job {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Job{sessions: sessions, codes: codes, refresh: refresh, interval: interval}
}

// Start launches the job. The first run happens immediately.
func (j *Job) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	// Capture the channel: Stop may nil out j.done before this goroutine
	// is scheduled, and the deferred close must target the channel this
	// Start created.
	done := j.done
	go func() {
		defer close(done)
		j.runOnce(ctx)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.runOnce(ctx)
			}
		}
	}()
}

// Stop halts the ticker and waits for an in-flight run to return.
// Idempotent and safe to call when Start never ran.
func (j *Job) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	done := j.done
	j.cancel = nil
	j.done = nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (j *Job) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	tables := []struct {
		name  string
		store Expirer
	}{
		{"sessions", j.sessions},
		{"authorization_codes", j.codes},
		{"refresh_tokens", j.refresh},
	}
	for _, t := range tables {
		if t.store == nil {
			continue
		}
		n, err := t.store.DeleteExpired(ctx, now)
		if err != nil {
			logger.Warnf("cleanup: %s: %v", t.name, err)
			continue
		}
		if n > 0 {
			metrics.CleanupDeleted.WithLabelValues(t.name).Add(float64(n))
		}
		logger.Debugf("cleanup: %s: removed %d expired", t.name, n)
	}
}
