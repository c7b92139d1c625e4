package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// subscriberCounter is the slice of the hub the idle monitor needs.
type subscriberCounter interface {
	TotalSubscribers() int
}

// idleMonitor fires a shutdown after a quiet period. Quiet means no
// request activity and no live subscribers: one attached event stream
// keeps the server up by itself.
type idleMonitor struct {
	timeout time.Duration
	subs    subscriberCounter
	logger  *slog.Logger

	mu   sync.Mutex
	last time.Time
}

func newIdleMonitor(timeout time.Duration, subs subscriberCounter, logger *slog.Logger) *idleMonitor {
	return &idleMonitor{
		timeout: timeout,
		subs:    subs,
		logger:  logger,
		last:    time.Now(),
	}
}

// Touch resets the activity clock.
func (m *idleMonitor) Touch() {
	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()
}

func (m *idleMonitor) idleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.last)
}

// run polls until ctx ends or the quiet period elapses, then calls fire
// once. A timeout of zero or less disables the monitor.
func (m *idleMonitor) run(ctx context.Context, fire func()) {
	if m.timeout <= 0 {
		return
	}
	poll := m.timeout / 5
	if poll < 20*time.Millisecond {
		poll = 20 * time.Millisecond
	}
	if poll > 30*time.Second {
		poll = 30 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.subs.TotalSubscribers() > 0 {
				m.Touch()
				continue
			}
			if idle := m.idleFor(); idle >= m.timeout {
				m.logger.Info("idle timeout reached", "idle", idle.Round(time.Millisecond))
				fire()
				return
			}
		}
	}
}
