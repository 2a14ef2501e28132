// internal/backend/database.go
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bigyan313/OBGC-V19/internal/config"
)

type dbUser struct {
	WalletAddress string    `gorm:"primaryKey;column:wallet_address"`
	ClickCount    uint64    `gorm:"column:click_count;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (dbUser) TableName() string { return "users" }

type dbClickBatch struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	WalletAddress string    `gorm:"column:wallet_address;index"`
	Clicks        uint64    `gorm:"column:clicks;not null"`
	TxSignature   string    `gorm:"column:tx_signature"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (dbClickBatch) TableName() string { return "click_batches" }

type dbGlobalStats struct {
	ID          uint64    `gorm:"primaryKey"`
	TotalClicks uint64    `gorm:"column:total_clicks;not null;default:0"`
	TotalUsers  uint64    `gorm:"column:total_users;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (dbGlobalStats) TableName() string { return "global_stats" }

// DatabaseBackend is the Postgres gateway for click totals. It also serves
// as the mirror target for hybrid chain writes.
type DatabaseBackend struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ RemoteBackend = (*DatabaseBackend)(nil)

// NewDatabaseBackend connects to Postgres and migrates the schema.
func NewDatabaseBackend(dsn string, logger *zap.Logger) (*DatabaseBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(&dbUser{}, &dbClickBatch{}, &dbGlobalStats{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DatabaseBackend{db: db, logger: logger.Named("db-backend")}, nil
}

func (b *DatabaseBackend) Kind() config.BackendKind {
	return config.BackendDatabase
}

// AddUserClicks records a click batch in one transaction: the user total,
// the batch row (with the chain signature when mirroring) and the global
// stats all move together.
func (b *DatabaseBackend) AddUserClicks(ctx context.Context, wallet string, clicks uint64, signature string) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user dbUser
		newUser := false
		err := tx.Where("wallet_address = ?", wallet).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			newUser = true
			user = dbUser{WalletAddress: wallet, ClickCount: clicks}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load user: %w", err)
		default:
			if err := tx.Model(&user).
				Update("click_count", gorm.Expr("click_count + ?", clicks)).Error; err != nil {
				return fmt.Errorf("failed to bump user clicks: %w", err)
			}
		}

		batch := dbClickBatch{
			WalletAddress: wallet,
			Clicks:        clicks,
			TxSignature:   signature,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return fmt.Errorf("failed to record click batch: %w", err)
		}

		var stats dbGlobalStats
		if err := tx.FirstOrCreate(&stats, dbGlobalStats{ID: 1}).Error; err != nil {
			return fmt.Errorf("failed to load global stats: %w", err)
		}
		updates := map[string]interface{}{
			"total_clicks": gorm.Expr("total_clicks + ?", clicks),
			"updated_at":   time.Now(),
		}
		if newUser {
			updates["total_users"] = gorm.Expr("total_users + 1")
		}
		if err := tx.Model(&stats).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to bump global stats: %w", err)
		}
		return nil
	})
}

// GlobalStats returns the total click and user counts.
func (b *DatabaseBackend) GlobalStats(ctx context.Context) (totalClicks, totalUsers uint64, err error) {
	var stats dbGlobalStats
	err = b.db.WithContext(ctx).First(&stats, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load global stats: %w", err)
	}
	return stats.TotalClicks, stats.TotalUsers, nil
}

// Leaderboard returns the top wallets by click count.
func (b *DatabaseBackend) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var users []dbUser
	err := b.db.WithContext(ctx).
		Order("click_count DESC, wallet_address ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, LeaderboardEntry{Wallet: u.WalletAddress, Clicks: u.ClickCount})
	}
	return entries, nil
}

// UserClicks returns a wallet's recorded total, zero for unknown wallets.
func (b *DatabaseBackend) UserClicks(ctx context.Context, wallet string) (uint64, error) {
	var user dbUser
	err := b.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load user: %w", err)
	}
	return user.ClickCount, nil
}

// UserRank returns a wallet's 1-based rank, zero for unknown wallets.
func (b *DatabaseBackend) UserRank(ctx context.Context, wallet string) (int, error) {
	var user dbUser
	err := b.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load user: %w", err)
	}

	var higher int64
	err = b.db.WithContext(ctx).Model(&dbUser{}).
		Where("click_count > ?", user.ClickCount).
		Count(&higher).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute rank: %w", err)
	}
	return int(higher) + 1, nil
}

func (b *DatabaseBackend) Read(ctx context.Context, wallet string) (*Snapshot, error) {
	snap := &Snapshot{FetchedAt: time.Now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clicks, users, err := b.GlobalStats(gctx)
		if err != nil {
			return err
		}
		snap.TotalClicks = clicks
		snap.TotalUsers = users
		return nil
	})
	g.Go(func() error {
		board, err := b.Leaderboard(gctx, leaderboardSize)
		if err != nil {
			return err
		}
		snap.Leaderboard = board
		return nil
	})
	g.Go(func() error {
		clicks, err := b.UserClicks(gctx, wallet)
		if err != nil {
			return err
		}
		snap.UserClicks = clicks
		snap.DatabaseClicks = clicks
		return nil
	})
	g.Go(func() error {
		rank, err := b.UserRank(gctx, wallet)
		if err != nil {
			return err
		}
		snap.UserRank = rank
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (b *DatabaseBackend) Write(ctx context.Context, wallet string, clicks uint64, fee uint64) (*Receipt, error) {
	if err := b.AddUserClicks(ctx, wallet, clicks, ""); err != nil {
		return nil, err
	}
	b.logger.Info("Click batch recorded in database",
		zap.String("wallet", wallet), zap.Uint64("clicks", clicks))
	return &Receipt{Clicks: clicks, SubmittedAt: time.Now()}, nil
}
