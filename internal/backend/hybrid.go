// internal/backend/hybrid.go
package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/config"
)

// Mirror records a chain-confirmed click batch in a secondary system.
type Mirror interface {
	AddUserClicks(ctx context.Context, wallet string, clicks uint64, signature string) error
	Read(ctx context.Context, wallet string) (*Snapshot, error)
}

// HybridBackend writes click batches to the chain as the source of truth
// and mirrors them to the database for cheap aggregate reads. A mirror
// failure is logged and tolerated; the chain write already succeeded and is
// never rolled back.
type HybridBackend struct {
	chain  RemoteBackend
	mirror Mirror // nil when the database is not configured
	logger *zap.Logger
}

var _ RemoteBackend = (*HybridBackend)(nil)

func NewHybridBackend(chain RemoteBackend, mirror Mirror, logger *zap.Logger) (*HybridBackend, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridBackend{chain: chain, mirror: mirror, logger: logger.Named("hybrid-backend")}, nil
}

func (b *HybridBackend) Kind() config.BackendKind {
	return config.BackendHybrid
}

func (b *HybridBackend) Write(ctx context.Context, wallet string, clicks uint64, fee uint64) (*Receipt, error) {
	receipt, err := b.chain.Write(ctx, wallet, clicks, fee)
	if err != nil {
		return nil, err
	}

	if b.mirror != nil {
		if err := b.mirror.AddUserClicks(ctx, wallet, clicks, receipt.Signature); err != nil {
			b.logger.Warn("Database mirror write failed, chain write stands",
				zap.String("signature", receipt.Signature),
				zap.Error(err))
		}
	}
	return receipt, nil
}

// Read merges the database aggregate view with the chain-side totals,
// keeping the two click sources distinguishable.
func (b *HybridBackend) Read(ctx context.Context, wallet string) (*Snapshot, error) {
	chainSnap, chainErr := b.chain.Read(ctx, wallet)

	if b.mirror == nil {
		return chainSnap, chainErr
	}

	dbSnap, dbErr := b.mirror.Read(ctx, wallet)
	if dbErr != nil {
		b.logger.Warn("Database read failed, using chain view only", zap.Error(dbErr))
		return chainSnap, chainErr
	}

	merged := *dbSnap
	if chainErr == nil && chainSnap != nil {
		merged.BlockchainClicks = chainSnap.BlockchainClicks
		if chainSnap.UserClicks > merged.UserClicks {
			merged.UserClicks = chainSnap.UserClicks
		}
	}
	merged.FetchedAt = time.Now()
	return &merged, nil
}
