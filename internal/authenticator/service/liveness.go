package service

import (
	"context"
	"log/slog"
	"time"
)

// DefaultLivenessInterval is how often an authenticated session is
// re-validated against the backend.
const DefaultLivenessInterval = time.Minute

// LivenessWorker periodically re-validates the session so a remote
// revocation (device signed out elsewhere) is detected and surfaced within
// one interval even with no user interaction.
type LivenessWorker struct {
	Sessions *SessionService
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewLivenessWorker(sessions *SessionService, logger *slog.Logger, interval time.Duration) *LivenessWorker {
	if interval <= 0 {
		interval = DefaultLivenessInterval
	}

	return &LivenessWorker{
		Sessions: sessions,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background validation loop.
func (w *LivenessWorker) Start() {
	go w.run()
	w.Logger.Info("session liveness checks started", "interval", w.Interval)
}

// Stop shuts the worker down and waits for it to finish.
func (w *LivenessWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.Logger.Info("session liveness checks stopped")
}

func (w *LivenessWorker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.validate()
		case <-w.stopCh:
			return
		}
	}
}

func (w *LivenessWorker) validate() {
	ctx, cancel := context.WithTimeout(context.Background(), w.Interval)
	defer cancel()

	if err := w.Sessions.Validate(ctx); err != nil {
		// Transport failures are transient; Validate has already handled
		// the 401 cases by clearing the session.
		w.Logger.Debug("session validation failed", "error", err)
	}
}
