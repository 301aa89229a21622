// Package watchdog implements an independent monotonic deadline that
// forces a fault if the cycle thread stops kicking it, regardless of
// the scheduler's own overrun policy.
package watchdog

import (
	"sync/atomic"
	"time"
)

// Watchdog monitors a periodically-kicked deadline from a separate
// goroutine. Kick is cheap and allocation-free so it is safe to call
// from the real-time cycle thread every cycle.
type Watchdog struct {
	timeout    time.Duration
	lastKickNs atomic.Int64
	startedAt  time.Time
	triggered  atomic.Bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// New creates a Watchdog with the given timeout. It is not running
// until Start is called.
func New(timeout time.Duration) *Watchdog {
	return &Watchdog{
		timeout: timeout,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins monitoring on a background goroutine, checking for
// expiry roughly every tenth of the timeout (never finer than 1ms).
func (w *Watchdog) Start() {
	w.startedAt = time.Now()
	w.lastKickNs.Store(0)

	interval := w.timeout / 10
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
				if w.expired() {
					w.triggered.Store(true)
				}
			}
		}
	}()
}

// Stop halts the monitor goroutine and waits for it to exit.
func (w *Watchdog) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// Kick records that the cycle thread is alive. Must be called once per
// cycle, ideally at the start of the cycle.
func (w *Watchdog) Kick() {
	w.lastKickNs.Store(int64(time.Since(w.startedAt)))
}

func (w *Watchdog) expired() bool {
	last := w.lastKickNs.Load()
	now := int64(time.Since(w.startedAt))
	return time.Duration(now-last) > w.timeout
}

// Triggered reports whether the watchdog has fired since Start (or
// since the last Reset).
func (w *Watchdog) Triggered() bool {
	return w.triggered.Load()
}

// Reset clears a triggered watchdog and re-arms the kick deadline.
// Called by the scheduler's fault reset.
func (w *Watchdog) Reset() {
	w.triggered.Store(false)
	w.lastKickNs.Store(int64(time.Since(w.startedAt)))
}
