// Package watcher keeps the runtime settings snapshot in sync with the
// database so priority mode, batch size and reservation tunables change
// without a restart.
package watcher

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modelrelay/modelrelay/internal/settings"
)

const defaultPollInterval = 10 * time.Second

// Watcher polls the settings table on a fixed interval.
type Watcher struct {
	store        *settings.Store
	pollInterval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a watcher over the settings store. A non-positive interval
// falls back to the default.
func New(store *settings.Store, pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Watcher{store: store, pollInterval: pollInterval}
}

// Start launches the polling loop. Calling Start twice is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(runCtx)
}

// Stop cancels the loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
}

// run refreshes once up front and then on every tick until canceled.
func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	w.refresh()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *Watcher) refresh() {
	if errRefresh := w.store.Refresh(); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings watcher: refresh failed")
	}
}
