// internal/submit/coordinator.go
package submit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/backend"
	"github.com/bigyan313/OBGC-V19/internal/clicker"
	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/logger"
	"github.com/bigyan313/OBGC-V19/internal/notify"
	"github.com/bigyan313/OBGC-V19/internal/rpcpool"
	"github.com/bigyan313/OBGC-V19/internal/store"
	"github.com/bigyan313/OBGC-V19/internal/wallet"
)

var (
	// ErrAlreadySubmitting occurs when a submission is in flight.
	ErrAlreadySubmitting = errors.New("a submission is already in progress")

	// ErrNothingToSubmit occurs when the pending count is zero.
	ErrNothingToSubmit = errors.New("no pending clicks to submit")

	// ErrNoWallet occurs when no wallet is connected.
	ErrNoWallet = errors.New("no wallet connected")

	// ErrInsufficientBalance occurs when the wallet cannot cover fees.
	ErrInsufficientBalance = errors.New("insufficient SOL balance for transaction fees")
)

const (
	// minBalanceLamports is 0.001 SOL, the floor for covering fees.
	minBalanceLamports = 1_000_000

	// postSubmitRefreshDelay is how long after a confirmed submission the
	// remote snapshot is force-refreshed to reconcile optimistic bumps.
	postSubmitRefreshDelay = 5 * time.Second
)

// BalanceSource reports a wallet's lamport balance.
type BalanceSource interface {
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// FeeSource provides the priority fee recommendation.
type FeeSource interface {
	Refresh(ctx context.Context) uint64
}

// SnapshotCache receives optimistic bumps and delayed reconciliation
// requests after a successful submission.
type SnapshotCache interface {
	Bump(wallet string, clicks uint64)
	ScheduleRefresh(ctx context.Context, wallet string, delay time.Duration)
}

// Coordinator drives the submission flow: preconditions, balance check,
// fee estimate, backend write, then local state transitions. At most one
// submission is in flight; a second call is rejected, not queued.
type Coordinator struct {
	acc      *clicker.Accumulator
	backend  backend.RemoteBackend
	balance  BalanceSource
	fees     FeeSource
	cache    SnapshotCache
	store    *store.Store
	notifier *notify.Dispatcher
	explorer func(signature string) string
	logger   *zap.Logger

	submitting atomic.Bool
}

// NewCoordinator wires a submission coordinator.
func NewCoordinator(
	acc *clicker.Accumulator,
	b backend.RemoteBackend,
	balance BalanceSource,
	fees FeeSource,
	cache SnapshotCache,
	st *store.Store,
	notifier *notify.Dispatcher,
	explorer func(signature string) string,
	logger *zap.Logger,
) (*Coordinator, error) {
	if acc == nil || b == nil || st == nil {
		return nil, fmt.Errorf("accumulator, backend and store are required")
	}
	if explorer == nil {
		explorer = func(string) string { return "" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		acc:      acc,
		backend:  b,
		balance:  balance,
		fees:     fees,
		cache:    cache,
		store:    st,
		notifier: notifier,
		explorer: explorer,
		logger:   logger.Named("submit"),
	}, nil
}

// Submitting reports whether a submission is in flight.
func (c *Coordinator) Submitting() bool {
	return c.submitting.Load()
}

// Submit sends the wallet's pending clicks to the backend. The wallet
// identity is captured at entry: a completion that lands after a wallet
// switch still persists under the original address. On any failure the
// pending count is left intact.
func (c *Coordinator) Submit(ctx context.Context) (*backend.Receipt, error) {
	walletAddr := c.acc.Wallet()
	if walletAddr == "" {
		c.notifier.Error("Submission failed", "Connect a wallet first")
		return nil, ErrNoWallet
	}

	pending := c.acc.Pending()
	if pending == 0 {
		c.notifier.Info("Nothing to submit", "No pending clicks")
		return nil, ErrNothingToSubmit
	}

	if !c.submitting.CompareAndSwap(false, true) {
		c.notifier.Warning("Submission in progress", "Wait for the current submission to finish")
		return nil, ErrAlreadySubmitting
	}
	defer c.submitting.Store(false)

	log := logger.WithWallet(logger.WithOperation(c.logger, "submit_batch"), walletAddr).
		With(zap.Uint64("clicks", pending))

	if err := c.checkBalance(ctx, walletAddr); err != nil {
		log.Warn("Balance pre-check failed", zap.Error(err))
		c.notifier.Error("Insufficient balance",
			"At least 0.001 SOL is needed to cover transaction fees")
		return nil, err
	}

	var fee uint64
	if c.fees != nil {
		fee = c.fees.Refresh(ctx)
	}

	receipt, err := c.backend.Write(ctx, walletAddr, pending, fee)
	if err != nil {
		c.reportFailure(log, err)
		return nil, err
	}

	c.complete(ctx, walletAddr, receipt)
	log.Info("Batch submission confirmed", zap.String("signature", receipt.Signature))
	return receipt, nil
}

// checkBalance verifies the wallet can cover fees. Database-only writes
// cost nothing and skip the check.
func (c *Coordinator) checkBalance(ctx context.Context, walletAddr string) error {
	if c.backend.Kind() == config.BackendDatabase || c.balance == nil {
		return nil
	}

	pk, err := solana.PublicKeyFromBase58(walletAddr)
	if err != nil {
		return fmt.Errorf("invalid wallet address: %w", err)
	}

	balance, err := c.balance.Balance(ctx, pk)
	if err != nil {
		// Balance lookup failure is not proof of insufficiency; let the
		// submission proceed and fail on its own merits.
		c.logger.Warn("Balance check failed, proceeding", zap.Error(err))
		return nil
	}
	if balance < minBalanceLamports {
		return ErrInsufficientBalance
	}
	return nil
}

func (c *Coordinator) reportFailure(log *zap.Logger, err error) {
	switch {
	case errors.Is(err, wallet.ErrSignatureRejected):
		log.Info("Submission cancelled by user")
		c.notifier.Warning("Transaction cancelled", "Signature request was rejected; clicks are kept")
	case errors.Is(err, rpcpool.ErrTransactionFailed):
		log.Error("Transaction failed on chain", zap.Error(err))
		c.notifier.Error("Transaction failed", "The program rejected the batch; clicks are kept")
	default:
		logger.LogError(log, "Submission failed", err)
		c.notifier.Error("Submission failed", "Network error; clicks are kept and can be resubmitted")
	}
}

// complete applies the post-success transitions under the captured wallet:
// record the transaction, zero the pending count, bump the snapshot and
// schedule a delayed reconciling refresh.
func (c *Coordinator) complete(ctx context.Context, walletAddr string, receipt *backend.Receipt) {
	explorerURL := ""
	if receipt.Signature != "" {
		explorerURL = c.explorer(receipt.Signature)
	}

	rec := store.TransactionRecord{
		Signature:   receipt.Signature,
		Clicks:      receipt.Clicks,
		Status:      store.StatusConfirmed,
		Timestamp:   receipt.SubmittedAt,
		ExplorerURL: explorerURL,
	}
	if err := c.store.AppendTransaction(walletAddr, rec); err != nil {
		c.logger.Warn("Failed to record transaction", zap.Error(err))
	}

	if err := c.store.SetPendingClicks(walletAddr, 0); err != nil {
		c.logger.Warn("Failed to zero pending clicks", zap.Error(err))
	}

	if c.cache != nil {
		c.cache.Bump(walletAddr, receipt.Clicks)
		c.cache.ScheduleRefresh(ctx, walletAddr, postSubmitRefreshDelay)
	}

	msg := fmt.Sprintf("%d clicks submitted", receipt.Clicks)
	if explorerURL != "" {
		c.notifier.Success("Batch confirmed", msg, notify.WithExplorerLink(explorerURL))
	} else {
		c.notifier.Success("Batch recorded", msg)
	}
}
