// internal/backend/backend.go
package backend

import (
	"context"
	"time"

	"github.com/bigyan313/OBGC-V19/internal/config"
)

// LeaderboardEntry is one row of the global leaderboard.
type LeaderboardEntry struct {
	Wallet string
	Clicks uint64
}

// Snapshot is the remote view of the counter for one wallet.
type Snapshot struct {
	TotalClicks      uint64
	TotalUsers       uint64
	UserClicks       uint64
	UserRank         int // 0 when unknown
	Leaderboard      []LeaderboardEntry
	DatabaseClicks   uint64
	BlockchainClicks uint64
	FetchedAt        time.Time
}

// Receipt describes a completed click batch write.
type Receipt struct {
	Signature   string // empty for database-only writes
	Clicks      uint64
	Fee         uint64 // microlamports, zero for database-only writes
	SubmittedAt time.Time
}

// RemoteBackend reads and writes click totals against a remote system. A
// Read failure is recoverable: callers degrade to cached or zero values.
type RemoteBackend interface {
	Kind() config.BackendKind
	Read(ctx context.Context, wallet string) (*Snapshot, error)
	Write(ctx context.Context, wallet string, clicks uint64, fee uint64) (*Receipt, error)
}
