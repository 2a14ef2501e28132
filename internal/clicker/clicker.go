// internal/clicker/clicker.go
package clicker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/store"
)

// ErrChallengeCancelled marks a challenge the user dismissed.
var ErrChallengeCancelled = errors.New("challenge cancelled")

const maxChallengeAttempts = 3

// ChallengeProvider presents a human verification challenge. Solve returns
// nil on a pass, ErrChallengeCancelled when dismissed, any other error on a
// failed attempt.
type ChallengeProvider interface {
	Solve(ctx context.Context) error
}

// TotalsSource reports the confirmed (already submitted) click total for a
// wallet, used to compute the cumulative count for checkpoint placement.
type TotalsSource interface {
	ConfirmedClicks(wallet string) uint64
}

// AddOutcome describes the effect of one AddClick call.
type AddOutcome struct {
	Accepted   bool
	Pending    uint64
	Cumulative uint64
	// Checkpoint is set when this click crossed a checkpoint boundary and
	// the accumulator froze awaiting a challenge. The crossing click itself
	// was recorded.
	Checkpoint bool
}

// CheckpointResult describes how a checkpoint was resolved.
type CheckpointResult string

const (
	CheckpointPassed    CheckpointResult = "passed"
	CheckpointCancelled CheckpointResult = "cancelled"
	CheckpointExhausted CheckpointResult = "exhausted"
)

// Accumulator counts clicks for the active wallet, persisting the pending
// total on every click. Every checkpoint-interval cumulative click it
// freezes input until a human challenge resolves; resolution never reverts
// already recorded clicks.
type Accumulator struct {
	store     *store.Store
	totals    TotalsSource
	challenge ChallengeProvider
	interval  uint64
	logger    *zap.Logger

	mu     sync.Mutex
	wallet string
	frozen bool
}

// New creates an accumulator. interval is the cumulative click count
// between checkpoints.
func New(st *store.Store, totals TotalsSource, challenge ChallengeProvider, interval uint64, logger *zap.Logger) (*Accumulator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if totals == nil {
		return nil, fmt.Errorf("totals source is required")
	}
	if interval == 0 {
		return nil, fmt.Errorf("checkpoint interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accumulator{
		store:     st,
		totals:    totals,
		challenge: challenge,
		interval:  interval,
		logger:    logger.Named("clicker"),
	}, nil
}

// SetWallet switches the active wallet. An empty address disconnects; the
// freeze state belongs to the session, not the wallet, and is cleared.
func (a *Accumulator) SetWallet(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wallet = address
	a.frozen = false
}

// Wallet returns the active wallet address, empty when disconnected.
func (a *Accumulator) Wallet() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wallet
}

// Frozen reports whether input is suspended awaiting a checkpoint.
func (a *Accumulator) Frozen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frozen
}

// Pending returns the active wallet's unsubmitted click count.
func (a *Accumulator) Pending() uint64 {
	a.mu.Lock()
	wallet := a.wallet
	a.mu.Unlock()
	if wallet == "" {
		return 0
	}
	return a.store.PendingClicks(wallet)
}

// AddClick records one click. It is a no-op while disconnected or frozen.
// When the cumulative total (confirmed plus pending) crosses a checkpoint
// boundary the click is recorded first, then the accumulator freezes.
func (a *Accumulator) AddClick() AddOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.wallet == "" || a.frozen {
		return AddOutcome{}
	}

	pending := a.store.PendingClicks(a.wallet) + 1
	if err := a.store.SetPendingClicks(a.wallet, pending); err != nil {
		a.logger.Error("Failed to persist pending clicks", zap.Error(err))
		return AddOutcome{}
	}

	cumulative := a.totals.ConfirmedClicks(a.wallet) + pending
	outcome := AddOutcome{Accepted: true, Pending: pending, Cumulative: cumulative}

	if cumulative%a.interval == 0 {
		a.frozen = true
		outcome.Checkpoint = true
		a.logger.Info("Checkpoint reached, input frozen",
			zap.String("wallet", a.wallet),
			zap.Uint64("cumulative", cumulative))
	}
	return outcome
}

// ResetPending zeroes the pending count, used after a successful submission.
func (a *Accumulator) ResetPending() error {
	a.mu.Lock()
	wallet := a.wallet
	a.mu.Unlock()
	if wallet == "" {
		return nil
	}
	return a.store.SetPendingClicks(wallet, 0)
}

// ResolveCheckpoint runs the challenge flow. Regardless of outcome (pass,
// cancel, attempts exhausted) the freeze is cleared and recorded pending
// clicks are preserved.
func (a *Accumulator) ResolveCheckpoint(ctx context.Context) (CheckpointResult, error) {
	defer func() {
		a.mu.Lock()
		a.frozen = false
		a.mu.Unlock()
	}()

	if a.challenge == nil {
		return CheckpointPassed, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxChallengeAttempts; attempt++ {
		err := a.challenge.Solve(ctx)
		if err == nil {
			a.logger.Info("Checkpoint challenge passed", zap.Int("attempt", attempt))
			return CheckpointPassed, nil
		}
		if errors.Is(err, ErrChallengeCancelled) || errors.Is(err, context.Canceled) {
			a.logger.Info("Checkpoint challenge cancelled")
			return CheckpointCancelled, nil
		}
		lastErr = err
		a.logger.Warn("Checkpoint challenge attempt failed",
			zap.Int("attempt", attempt), zap.Error(err))
	}

	a.logger.Warn("Checkpoint challenge attempts exhausted, unfreezing")
	return CheckpointExhausted, lastErr
}
