// internal/backend/chain.go
package backend

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/logger"
	"github.com/bigyan313/OBGC-V19/internal/rpcpool"
	"github.com/bigyan313/OBGC-V19/internal/wallet"
)

var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Sender submits a set of instructions as one signed transaction and waits
// for confirmation.
type Sender interface {
	SendInstructions(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error)
}

// ChainSender is the shared send path for chain-backed writes: fetch a
// blockhash, assemble, sign through the wallet capability, send with
// preflight and poll for confirmation.
type ChainSender struct {
	client *rpcpool.Client
	signer wallet.Wallet
	logger *zap.Logger
}

var _ Sender = (*ChainSender)(nil)

func NewChainSender(client *rpcpool.Client, signer wallet.Wallet, logger *zap.Logger) (*ChainSender, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSender{client: client, signer: signer, logger: logger.Named("chain")}, nil
}

func (s *ChainSender) SendInstructions(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	defer logger.TrackPerformance(s.logger, "send_transaction")()

	blockhash, _, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash,
		solana.TransactionPayer(s.signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	if err := s.signer.SignTransaction(tx); err != nil {
		if errors.Is(err, wallet.ErrSignatureRejected) {
			return solana.Signature{}, err
		}
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.client.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	txLog := logger.WithTransaction(s.logger, sig.String())
	txLog.Info("Transaction sent, awaiting confirmation")

	if err := s.client.ConfirmTransaction(ctx, sig); err != nil {
		txLog.Warn("Confirmation did not complete", zap.Error(err))
		return sig, err
	}
	txLog.Info("Transaction confirmed")
	return sig, nil
}

// ComputeUnitPriceInstruction sets the priority fee for the transaction.
// Layout: instruction index 3, then the price in microlamports as u64 LE.
func ComputeUnitPriceInstruction(microlamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], microlamports)
	return solana.NewInstruction(computeBudgetProgramID, []*solana.AccountMeta{}, data)
}
