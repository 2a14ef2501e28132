// internal/backend/memo.go
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/store"
)

var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

const (
	memoAppName = "1B-Global-Clicks"
	memoVersion = "1.0"
)

// MemoPayload is the JSON click batch record written to the memo program.
type MemoPayload struct {
	App       string `json:"app"`
	Wallet    string `json:"wallet"`
	Clicks    uint64 `json:"clicks"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

// NewMemoPayload builds the batch record for a wallet.
func NewMemoPayload(wallet string, clicks uint64, at time.Time) MemoPayload {
	return MemoPayload{
		App:       memoAppName,
		Wallet:    wallet,
		Clicks:    clicks,
		Timestamp: at.UnixMilli(),
		Version:   memoVersion,
	}
}

// MemoInstruction encodes the payload as a memo program instruction signed
// by the submitting wallet.
func MemoInstruction(payload MemoPayload, signer solana.PublicKey) (solana.Instruction, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode memo payload: %w", err)
	}
	return solana.NewInstruction(
		memoProgramID,
		[]*solana.AccountMeta{
			{PublicKey: signer, IsWritable: false, IsSigner: true},
		},
		data,
	), nil
}

// MemoBackend writes click batches as memo transactions. No program account
// is required, so any wallet can submit without prior setup. Reads come
// from the local blockchain-clicks cache since memo history is not
// economically queryable.
type MemoBackend struct {
	sender Sender
	store  *store.Store
	logger *zap.Logger
}

var _ RemoteBackend = (*MemoBackend)(nil)

func NewMemoBackend(sender Sender, st *store.Store, logger *zap.Logger) (*MemoBackend, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoBackend{sender: sender, store: st, logger: logger.Named("memo-backend")}, nil
}

func (b *MemoBackend) Kind() config.BackendKind {
	return config.BackendMemo
}

func (b *MemoBackend) Read(ctx context.Context, wallet string) (*Snapshot, error) {
	chainClicks := b.store.CachedChainClicks(wallet)
	return &Snapshot{
		UserClicks:       chainClicks,
		BlockchainClicks: chainClicks,
		FetchedAt:        time.Now(),
	}, nil
}

func (b *MemoBackend) Write(ctx context.Context, walletAddr string, clicks uint64, fee uint64) (*Receipt, error) {
	signer, err := solana.PublicKeyFromBase58(walletAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %s: %w", walletAddr, err)
	}

	now := time.Now()
	memoIx, err := MemoInstruction(NewMemoPayload(walletAddr, clicks, now), signer)
	if err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{
		ComputeUnitPriceInstruction(fee),
		memoIx,
	}

	sig, err := b.sender.SendInstructions(ctx, instructions)
	if err != nil {
		return nil, err
	}

	// The caches are left untouched: the submission coordinator owns the
	// optimistic update, a second bump here would double count the batch.

	b.logger.Info("Memo batch confirmed",
		zap.String("signature", sig.String()),
		zap.Uint64("clicks", clicks))

	return &Receipt{
		Signature:   sig.String(),
		Clicks:      clicks,
		Fee:         fee,
		SubmittedAt: now,
	}, nil
}
