package service

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRefreshInterval is the cadence for recomputing all account codes
// and the shared countdown.
const DefaultRefreshInterval = time.Second

// Refresher recomputes every account's codes on a fixed cadence and
// publishes the snapshot. Each account's computation is independent; a bad
// secret degrades only its own entry.
type Refresher struct {
	Vault    *VaultService
	Logger   *slog.Logger
	Interval time.Duration

	// OnSnapshot receives each recomputed snapshot together with the
	// seconds remaining in the current window.
	OnSnapshot func(entries []CodeEntry, secondsRemaining int)

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewRefresher(vault *VaultService, logger *slog.Logger, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	return &Refresher{
		Vault:    vault,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the refresh loop. An immediate first snapshot is published
// so callers are not blank for the first interval.
func (r *Refresher) Start() {
	go r.run()
	r.Logger.Info("code refresh started", "interval", r.Interval)
}

// Stop shuts the refresher down and waits for it to finish.
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.Logger.Info("code refresh stopped")
}

func (r *Refresher) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.refresh()

	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.Interval)
	defer cancel()

	entries, remaining, err := r.Vault.Codes(ctx)
	if err != nil {
		r.Logger.Error("code refresh failed", "error", err)
		return
	}

	if r.OnSnapshot != nil {
		r.OnSnapshot(entries, remaining)
	}
}
