package tokenbalance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/store"
)

type fakeFetcher struct {
	balance Balance
	err     error
	calls   int
}

func (f *fakeFetcher) FetchBalance(ctx context.Context, owner solana.PublicKey) (Balance, error) {
	f.calls++
	return f.balance, f.err
}

func newTestService(t *testing.T, fetcher Fetcher) (*Service, *store.Store, *clockwork.FakeClock) {
	t.Helper()
	st, err := store.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	svc, err := NewService(fetcher, st, clock, zap.NewNop())
	require.NoError(t, err)
	return svc, st, clock
}

func testWallet() string {
	return solana.NewWallet().PublicKey().String()
}

func TestGetServesFreshCache(t *testing.T) {
	fetcher := &fakeFetcher{balance: Balance{Amount: 1500, Decimals: 6}}
	svc, _, clock := newTestService(t, fetcher)
	wallet := testWallet()

	bal, err := svc.Get(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, bal.Amount)
	assert.Equal(t, 1, fetcher.calls)

	clock.Advance(cacheTTL - time.Second)
	_, err = svc.Get(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "fresh cache avoids a refetch")

	clock.Advance(2 * time.Second)
	_, err = svc.Get(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls, "expired cache triggers a refetch")
}

func TestMinFetchIntervalServesStale(t *testing.T) {
	fetcher := &fakeFetcher{balance: Balance{Amount: 100, Decimals: 6}}
	svc, _, clock := newTestService(t, fetcher)
	wallet := testWallet()

	_, err := svc.Get(context.Background(), wallet)
	require.NoError(t, err)

	// Expire the TTL but stay within the per-wallet fetch floor.
	clock.Advance(cacheTTL + time.Second)
	_, err = svc.Get(context.Background(), wallet)
	require.NoError(t, err)
	fetcher.balance.Amount = 999

	bal, err := svc.Get(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, 100.0, bal.Amount, "stale value within the fetch floor")
	assert.Equal(t, 2, fetcher.calls)
}

func TestFetchFailureFallsBackToPersisted(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("rpc down")}
	svc, st, _ := newTestService(t, fetcher)
	wallet := testWallet()

	require.NoError(t, st.SetTokenBalance(wallet, store.TokenBalanceEntry{
		Balance: 777, Decimals: 6, FetchedAt: time.Now(),
	}))

	bal, err := svc.Get(context.Background(), wallet)
	require.NoError(t, err, "fetch failure degrades, not errors")
	assert.Equal(t, 777.0, bal.Amount)
}

func TestHasSufficient(t *testing.T) {
	fetcher := &fakeFetcher{balance: Balance{Amount: 500, Decimals: 6}}
	svc, _, _ := newTestService(t, fetcher)
	wallet := testWallet()

	ok, shortfall, err := svc.HasSufficient(context.Background(), wallet, 300)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, shortfall)

	ok, shortfall, err = svc.HasSufficient(context.Background(), wallet, 800)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 300.0, shortfall)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2.50M", Format(2_500_000))
	assert.Equal(t, "1.5K", Format(1500))
	assert.Equal(t, "42", Format(42))
	assert.Equal(t, "0", Format(0))
}
