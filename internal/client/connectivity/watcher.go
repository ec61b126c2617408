package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/tendercrm/internal/logging"
)

// Pinger is the probe a PingWatcher polls.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingWatcher polls a Pinger on a fixed interval and considers the remote
// online while probes succeed.
type PingWatcher struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	mu     sync.Mutex
	online bool
	subs   subscribers

	stop chan struct{}
	done chan struct{}
}

var _ Observer = (*PingWatcher)(nil)

const defaultInterval = 5 * time.Second

func NewPingWatcher(p Pinger, interval, timeout time.Duration, logger logging.Logger) *PingWatcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &PingWatcher{
		pinger:   p,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "connectivity"),
	}
}

// Start probes once synchronously, so Online is meaningful as soon as it
// returns, then keeps probing in the background until ctx is done or Stop
// is called. Calling Start on a running watcher does nothing.
func (w *PingWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stop, w.done
	w.mu.Unlock()

	w.Probe(ctx)

	go func() {
		defer close(done)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Probe(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends background probing and waits for the probe loop to exit.
func (w *PingWatcher) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return
	}
	close(stop)
	<-done
}

// Probe pings the remote once and updates the state.
func (w *PingWatcher) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(pctx)
	cancel()

	if ctx.Err() != nil {
		return w.Online()
	}

	online := err == nil

	w.mu.Lock()
	changed := w.online != online
	w.online = online
	w.mu.Unlock()

	if changed {
		if online {
			w.logger.Info(ctx, "remote reachable, switched to online mode")
		} else {
			w.logger.Warn(ctx, "remote unreachable, switched to offline mode", "error", err)
		}
		w.subs.notify(online)
	}
	return online
}

func (w *PingWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

func (w *PingWatcher) Subscribe(fn func(online bool)) func() {
	return w.subs.add(fn)
}
