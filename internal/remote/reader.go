// internal/remote/reader.go
package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/backend"
	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/store"
)

// minFetchInterval gates automatic refreshes; a forced refresh bypasses the
// gate once and resets it.
const minFetchInterval = 10 * time.Second

// Reader maintains the remote snapshot for the active session. Remote
// failures degrade to the last good (or zero) snapshot; the reader never
// surfaces an error to its callers.
type Reader struct {
	backend backend.RemoteBackend
	store   *store.Store
	clock   clockwork.Clock
	logger  *zap.Logger

	mu        sync.Mutex
	lastFetch time.Time
	snapshot  backend.Snapshot
}

// NewReader creates a snapshot reader.
func NewReader(b backend.RemoteBackend, st *store.Store, clock clockwork.Clock, logger *zap.Logger) (*Reader, error) {
	if b == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		backend: b,
		store:   st,
		clock:   clock,
		logger:  logger.Named("remote-reader"),
	}, nil
}

// Snapshot returns the current view without fetching.
func (r *Reader) Snapshot() backend.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// Refresh rebuilds the snapshot from the backend. Automatic refreshes are
// rate gated to one per 10 seconds; force bypasses the gate. The returned
// snapshot is always usable.
func (r *Reader) Refresh(ctx context.Context, wallet string, force bool) backend.Snapshot {
	r.mu.Lock()
	if !force && !r.lastFetch.IsZero() && r.clock.Now().Sub(r.lastFetch) < minFetchInterval {
		snap := r.snapshot
		r.mu.Unlock()
		return snap
	}
	r.lastFetch = r.clock.Now()
	r.mu.Unlock()

	snap, err := r.backend.Read(ctx, wallet)
	if err != nil || snap == nil {
		r.logger.Warn("Remote read failed, keeping previous snapshot",
			zap.String("wallet", wallet), zap.Error(err))
		return r.Snapshot()
	}

	r.reconcileCaches(wallet, snap)

	r.mu.Lock()
	r.snapshot = *snap
	r.mu.Unlock()
	return *snap
}

// reconcileCaches folds authoritative remote totals back into the local
// per-wallet caches used for checkpoint math across restarts.
func (r *Reader) reconcileCaches(wallet string, snap *backend.Snapshot) {
	if wallet == "" {
		return
	}
	if snap.BlockchainClicks > r.store.CachedChainClicks(wallet) {
		if err := r.store.SetCachedChainClicks(wallet, snap.BlockchainClicks); err != nil {
			r.logger.Warn("Failed to update chain clicks cache", zap.Error(err))
		}
	}
	if snap.DatabaseClicks > r.store.CachedDatabaseClicks(wallet) {
		if err := r.store.SetCachedDatabaseClicks(wallet, snap.DatabaseClicks); err != nil {
			r.logger.Warn("Failed to update database clicks cache", zap.Error(err))
		}
	}
}

// ConfirmedClicks reports the wallet's already-submitted total from the
// local caches, the larger of the chain and database views.
func (r *Reader) ConfirmedClicks(wallet string) uint64 {
	if wallet == "" {
		return 0
	}
	chain := r.store.CachedChainClicks(wallet)
	db := r.store.CachedDatabaseClicks(wallet)
	if db > chain {
		return db
	}
	return chain
}

// Bump optimistically adds a submitted batch to the snapshot and local
// caches so the UI reflects the new totals before the next remote fetch.
// Only the caches the backend kind actually writes through are touched:
// inflating the others would survive reconciliation, which never lowers a
// cache. This is the single owner of the optimistic update; backends must
// not bump the caches themselves.
func (r *Reader) Bump(wallet string, clicks uint64) {
	kind := r.backend.Kind()
	bumpChain := kind != config.BackendDatabase
	bumpDB := kind == config.BackendDatabase || kind == config.BackendHybrid

	if bumpChain {
		if err := r.store.SetCachedChainClicks(wallet, r.store.CachedChainClicks(wallet)+clicks); err != nil {
			r.logger.Warn("Failed to bump chain clicks cache", zap.Error(err))
		}
	}
	if bumpDB {
		if err := r.store.SetCachedDatabaseClicks(wallet, r.store.CachedDatabaseClicks(wallet)+clicks); err != nil {
			r.logger.Warn("Failed to bump database clicks cache", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.snapshot.UserClicks += clicks
	r.snapshot.TotalClicks += clicks
	if bumpChain {
		r.snapshot.BlockchainClicks += clicks
	}
	if bumpDB {
		r.snapshot.DatabaseClicks += clicks
	}
	r.mu.Unlock()
}

// ScheduleRefresh triggers a forced refresh after the given delay, used to
// reconcile shortly after a submission confirms.
func (r *Reader) ScheduleRefresh(ctx context.Context, wallet string, delay time.Duration) {
	go func() {
		select {
		case <-ctx.Done():
		case <-r.clock.After(delay):
			r.Refresh(ctx, wallet, true)
		}
	}()
}
