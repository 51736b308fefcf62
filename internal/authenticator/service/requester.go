package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/api"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
)

// DefaultRequesterPollInterval is the cadence for polling an outstanding
// challenge's status. It is deliberately short: the user is staring at a
// "waiting for approval" screen and the poll settles the login within one
// interval of the responder's decision.
const DefaultRequesterPollInterval = 500 * time.Millisecond

// ChallengeOutcome is the single terminal result of a requester poll run.
type ChallengeOutcome struct {
	Status domain.ChallengeStatus

	// Session is set when Status is approved.
	Session *domain.Session

	// Err is set when the run ended because the challenge itself became
	// unreachable (not found, forbidden, rate limited) rather than through
	// a reported status.
	Err error
}

// RequesterPoller polls the backend for the resolution of one login
// challenge. It delivers exactly one terminal outcome: the first terminal
// status latches, and any late duplicate responses are ignored, so a slow
// duplicate "approved" can never re-open a closed attempt.
type RequesterPoller struct {
	API      *api.Client
	Sessions *SessionService
	Logger   *slog.Logger
	Interval time.Duration

	// OnOutcome receives the single terminal outcome. Called from the
	// poller's goroutine.
	OnOutcome func(ChallengeOutcome)

	challenge domain.Challenge

	mu      sync.Mutex
	started bool
	latched bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRequesterPoller prepares a poller for one challenge. Call Start to
// begin polling and Cancel to abandon the attempt.
func NewRequesterPoller(apiClient *api.Client, sessions *SessionService, logger *slog.Logger,
	challenge domain.Challenge, interval time.Duration) *RequesterPoller {
	if interval <= 0 {
		interval = DefaultRequesterPollInterval
	}

	return &RequesterPoller{
		API:       apiClient,
		Sessions:  sessions,
		Logger:    logger,
		Interval:  interval,
		challenge: challenge,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins polling in the background. Calling it more than once is a
// no-op.
func (p *RequesterPoller) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run()
}

// Cancel stops polling and discards the challenge without any backend side
// effects. Safe to call after a terminal outcome (the latch makes it a
// no-op then) and before Start (there is no goroutine to wait for).
func (p *RequesterPoller) Cancel() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if p.latch() {
		p.Sessions.ClearPending()
		close(p.stopCh)
	}
	if started {
		<-p.doneCh
	}
}

// Wait blocks until the poller has finished. Only meaningful after Start.
func (p *RequesterPoller) Wait() { <-p.doneCh }

// latch claims the single terminal transition. It returns false if another
// path already claimed it.
func (p *RequesterPoller) latch() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latched {
		return false
	}
	p.latched = true
	return true
}

func (p *RequesterPoller) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.poll() {
				return
			}
		case <-p.stopCh:
			return
		}
	}
}

// poll performs one status check. It returns true when the run is over.
func (p *RequesterPoller) poll() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.Interval*10)
	defer cancel()

	result, err := p.API.LoginStatus(ctx, p.challenge.ID, p.challenge.DeviceID)
	if err != nil {
		if api.TerminatesChallenge(err) {
			p.terminate(ChallengeOutcome{Err: err})
			return true
		}
		// Transient: silently wait for the next tick. No backoff, no retry
		// beyond the fixed cadence.
		p.Logger.Debug("challenge status poll failed", "error", err)
		return false
	}

	if !result.Status.Terminal() {
		return false
	}

	outcome := ChallengeOutcome{Status: result.Status}
	if result.Status == domain.StatusApproved && result.Auth != nil {
		session := p.Sessions.CompleteChallenge(ctx, *result.Auth)
		outcome.Session = &session
	}
	p.terminate(outcome)
	return true
}

// terminate honors exactly one terminal transition.
func (p *RequesterPoller) terminate(outcome ChallengeOutcome) {
	if !p.latch() {
		return
	}

	if outcome.Session == nil {
		// Denied, expired, or the challenge is gone: the pending login is
		// over either way.
		p.Sessions.ClearPending()
	}

	p.Logger.Info("challenge resolved",
		"challenge_id", p.challenge.ID, "status", outcome.Status, "error", outcome.Err)

	if p.OnOutcome != nil {
		p.OnOutcome(outcome)
	}
}
