// internal/tokenbalance/tokenbalance.go
package tokenbalance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/rpcpool"
	"github.com/bigyan313/OBGC-V19/internal/store"
)

const (
	// cacheTTL is how long a fetched balance stays fresh.
	cacheTTL = 30 * time.Second

	// minFetchInterval throttles RPC fetches per wallet; within it stale
	// values are served instead of refetching.
	minFetchInterval = 10 * time.Second

	defaultDecimals = 6
	cacheSize       = 128
)

// Balance is a token balance with its decimal precision.
type Balance struct {
	Amount   float64
	Decimals uint8
}

// Fetcher retrieves a wallet's token balance from the chain.
type Fetcher interface {
	FetchBalance(ctx context.Context, owner solana.PublicKey) (Balance, error)
}

// RPCFetcher reads the associated token account balance for a fixed mint.
// A missing token account means a zero balance, not an error.
type RPCFetcher struct {
	client *rpcpool.Client
	mint   solana.PublicKey
}

var _ Fetcher = (*RPCFetcher)(nil)

func NewRPCFetcher(client *rpcpool.Client, mint solana.PublicKey) (*RPCFetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if mint.IsZero() {
		return nil, fmt.Errorf("token mint is required")
	}
	return &RPCFetcher{client: client, mint: mint}, nil
}

func (f *RPCFetcher) FetchBalance(ctx context.Context, owner solana.PublicKey) (Balance, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, f.mint)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to derive token account: %w", err)
	}

	var balance Balance
	err = f.client.Execute(ctx, "getTokenAccountBalance", func(ctx context.Context, cl *solanarpc.Client) error {
		out, err := cl.GetTokenAccountBalance(ctx, ata, solanarpc.CommitmentConfirmed)
		if err != nil {
			if isMissingAccountError(err) {
				balance = Balance{Decimals: defaultDecimals}
				return nil
			}
			return err
		}

		decimals := out.Value.Decimals
		if out.Value.UiAmount != nil {
			balance = Balance{Amount: *out.Value.UiAmount, Decimals: decimals}
			return nil
		}
		raw, parseErr := strconv.ParseFloat(out.Value.Amount, 64)
		if parseErr != nil {
			return fmt.Errorf("unparseable token amount %q: %w", out.Value.Amount, parseErr)
		}
		div := 1.0
		for i := uint8(0); i < decimals; i++ {
			div *= 10
		}
		balance = Balance{Amount: raw / div, Decimals: decimals}
		return nil
	})
	return balance, err
}

func isMissingAccountError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "account not found") ||
		strings.Contains(msg, "invalid param")
}

type cacheEntry struct {
	balance   Balance
	fetchedAt time.Time
}

// Service caches token balances per wallet: a short-TTL in-memory layer
// over the persistent store, with a per-wallet floor between RPC fetches.
type Service struct {
	fetcher Fetcher
	store   *store.Store
	clock   clockwork.Clock
	logger  *zap.Logger

	cache     *lru.Cache[string, cacheEntry]
	lastFetch *lru.Cache[string, time.Time]
}

// NewService creates the token balance service.
func NewService(fetcher Fetcher, st *store.Store, clock clockwork.Clock, logger *zap.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
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

	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	lastFetch, err := lru.New[string, time.Time](cacheSize)
	if err != nil {
		return nil, err
	}

	return &Service{
		fetcher:   fetcher,
		store:     st,
		clock:     clock,
		logger:    logger.Named("tokenbalance"),
		cache:     cache,
		lastFetch: lastFetch,
	}, nil
}

// Get returns the wallet's token balance, served from cache while fresh.
// Throttled or failed fetches fall back to the last persisted value.
func (s *Service) Get(ctx context.Context, wallet string) (Balance, error) {
	now := s.clock.Now()

	if entry, ok := s.cache.Get(wallet); ok && now.Sub(entry.fetchedAt) < cacheTTL {
		return entry.balance, nil
	}

	if last, ok := s.lastFetch.Get(wallet); ok && now.Sub(last) < minFetchInterval {
		return s.stale(wallet), nil
	}
	s.lastFetch.Add(wallet, now)

	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return Balance{}, fmt.Errorf("invalid wallet address %s: %w", wallet, err)
	}

	balance, err := s.fetcher.FetchBalance(ctx, owner)
	if err != nil {
		s.logger.Warn("Token balance fetch failed, serving stale value",
			zap.String("wallet", wallet), zap.Error(err))
		return s.stale(wallet), nil
	}

	s.cache.Add(wallet, cacheEntry{balance: balance, fetchedAt: now})
	if err := s.store.SetTokenBalance(wallet, store.TokenBalanceEntry{
		Balance:   balance.Amount,
		Decimals:  balance.Decimals,
		FetchedAt: now,
	}); err != nil {
		s.logger.Warn("Failed to persist token balance", zap.Error(err))
	}
	return balance, nil
}

// stale returns the best known value: the in-memory entry regardless of
// age, then the persisted one, then zero.
func (s *Service) stale(wallet string) Balance {
	if entry, ok := s.cache.Get(wallet); ok {
		return entry.balance
	}
	if persisted, ok := s.store.TokenBalance(wallet); ok {
		return Balance{Amount: persisted.Balance, Decimals: persisted.Decimals}
	}
	return Balance{Decimals: defaultDecimals}
}

// HasSufficient checks the balance against a required amount, reporting
// the shortfall when short.
func (s *Service) HasSufficient(ctx context.Context, wallet string, required float64) (bool, float64, error) {
	balance, err := s.Get(ctx, wallet)
	if err != nil {
		return false, required, err
	}
	if balance.Amount >= required {
		return true, 0, nil
	}
	return false, required - balance.Amount, nil
}

// Format renders a balance for display with K/M suffixes.
func Format(balance float64) string {
	switch {
	case balance >= 1_000_000:
		return strconv.FormatFloat(balance/1_000_000, 'f', 2, 64) + "M"
	case balance >= 1_000:
		return strconv.FormatFloat(balance/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatFloat(balance, 'f', -1, 64)
	}
}
