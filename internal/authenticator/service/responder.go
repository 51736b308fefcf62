package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/api"
	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
)

// DefaultResponderPollInterval is the cadence for checking whether a login
// challenge is addressed to this device.
const DefaultResponderPollInterval = 5 * time.Second

var (
	ErrNoChallengeShown = errors.New("service: no challenge is currently shown")

	// ErrSigningUnavailable means the device could not produce a signature.
	// An unsigned decision is never submitted: "could not sign" is "cannot
	// approve", not "approved without proof".
	ErrSigningUnavailable = errors.New("service: signing unavailable, cannot resolve challenge")
)

// ResponderPoller is the responder role: while this device is
// authenticated it polls for a challenge raised by a login elsewhere, holds
// it up for a human decision, and submits the signed verdict.
type ResponderPoller struct {
	API      *api.Client
	Identity *IdentityService
	Sessions *SessionService
	Logger   *slog.Logger
	Interval time.Duration

	// OnChallenge is invoked when a new challenge appears (an id not
	// already being shown). OnCleared is invoked when the backend reports
	// no pending challenge while one was shown.
	OnChallenge func(domain.PendingChallenge)
	OnCleared   func()

	mu    sync.Mutex
	shown *domain.PendingChallenge

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewResponderPoller(apiClient *api.Client, identity *IdentityService, sessions *SessionService,
	logger *slog.Logger, interval time.Duration) *ResponderPoller {
	if interval <= 0 {
		interval = DefaultResponderPollInterval
	}

	return &ResponderPoller{
		API:      apiClient,
		Identity: identity,
		Sessions: sessions,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins polling in the background. Call Stop when the owning
// precondition (an authenticated session) ends.
func (p *ResponderPoller) Start() {
	go p.run()
	p.Logger.Info("responder polling started", "interval", p.Interval)
}

// Stop shuts the poller down and waits for it to finish.
func (p *ResponderPoller) Stop() {
	close(p.stopCh)
	<-p.doneCh
	p.Logger.Info("responder polling stopped")
}

// Shown returns the challenge currently awaiting a decision, or nil.
func (p *ResponderPoller) Shown() *domain.PendingChallenge {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown == nil {
		return nil
	}
	challenge := *p.shown
	return &challenge
}

func (p *ResponderPoller) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.poll()
		case <-p.stopCh:
			return
		}
	}
}

func (p *ResponderPoller) poll() {
	if !p.Sessions.Session().Authenticated() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.Interval)
	defer cancel()

	identity, err := p.Identity.Ensure(ctx)
	if err != nil {
		p.Logger.Debug("responder poll skipped: no identity", "error", err)
		return
	}

	challenge, err := p.API.PendingChallenge(ctx, identity.DeviceID)
	if err != nil {
		if p.Sessions.ObserveAuthError(err) {
			return
		}
		// Transient: wait for the next tick.
		p.Logger.Debug("pending challenge poll failed", "error", err)
		return
	}

	// Decide under the lock, notify outside it: a callback is free to call
	// back into Shown or Resolve.
	p.mu.Lock()
	var cleared bool
	var fresh *domain.PendingChallenge
	switch {
	case challenge == nil:
		if p.shown != nil {
			p.shown = nil
			cleared = true
		}
	case p.shown == nil || p.shown.ID != challenge.ID:
		p.shown = challenge
		fresh = challenge
	}
	p.mu.Unlock()

	if cleared && p.OnCleared != nil {
		p.OnCleared()
	}
	if fresh != nil {
		p.Logger.Info("login challenge received", "challenge_id", fresh.ID)
		if p.OnChallenge != nil {
			p.OnChallenge(*fresh)
		}
	}
}

// Resolve submits the human decision on the currently shown challenge. The
// decision is bound to the challenge id in a signed message; without a
// usable signing key the challenge cannot be resolved. The shown challenge
// is cleared regardless of submission outcome so a failed submission never
// leaves a stale prompt.
func (p *ResponderPoller) Resolve(ctx context.Context, decision domain.Decision) error {
	p.mu.Lock()
	challenge := p.shown
	p.shown = nil
	p.mu.Unlock()

	if challenge == nil {
		return ErrNoChallengeShown
	}

	identity, err := p.Identity.Ensure(ctx)
	if err != nil {
		return ErrSigningUnavailable
	}

	signature := p.Identity.Sign(ctx, domain.ApprovalMessage(challenge.ID, decision))
	signatureHex, ok := signature.Hex()
	if !ok {
		return ErrSigningUnavailable
	}

	err = p.API.ResolveChallenge(ctx, api.Resolution{
		ChallengeID: challenge.ID,
		Decision:    string(decision),
		Signature:   signatureHex,
		DeviceID:    identity.DeviceID,
	})
	if err != nil {
		p.Sessions.ObserveAuthError(err)
		return err
	}

	p.Logger.Info("challenge resolved", "challenge_id", challenge.ID, "decision", decision)
	return nil
}
