package submit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/backend"
	"github.com/bigyan313/OBGC-V19/internal/clicker"
	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/remote"
	"github.com/bigyan313/OBGC-V19/internal/store"
	"github.com/bigyan313/OBGC-V19/internal/wallet"
)

type fakeBackend struct {
	mu      sync.Mutex
	kind    config.BackendKind
	err     error
	block   chan struct{} // when set, Write waits until closed
	writes  int
	receipt *backend.Receipt
}

func (f *fakeBackend) Kind() config.BackendKind {
	if f.kind == "" {
		return config.BackendMemo
	}
	return f.kind
}

func (f *fakeBackend) Read(ctx context.Context, wallet string) (*backend.Snapshot, error) {
	return &backend.Snapshot{}, nil
}

func (f *fakeBackend) Write(ctx context.Context, wallet string, clicks, fee uint64) (*backend.Receipt, error) {
	f.mu.Lock()
	f.writes++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &backend.Receipt{
		Signature:   "test-signature",
		Clicks:      clicks,
		Fee:         fee,
		SubmittedAt: time.Now(),
	}, nil
}

type fakeBalance struct {
	lamports uint64
	err      error
}

func (f *fakeBalance) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return f.lamports, f.err
}

type fakeFees struct{ fee uint64 }

func (f *fakeFees) Refresh(ctx context.Context) uint64 { return f.fee }

type fakeCache struct {
	mu        sync.Mutex
	bumps     map[string]uint64
	scheduled []string
}

func (f *fakeCache) Bump(wallet string, clicks uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bumps == nil {
		f.bumps = map[string]uint64{}
	}
	f.bumps[wallet] += clicks
}

func (f *fakeCache) ScheduleRefresh(ctx context.Context, wallet string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, wallet)
}

type staticTotals struct{}

func (staticTotals) ConfirmedClicks(string) uint64 { return 0 }

type testEnv struct {
	coord   *Coordinator
	acc     *clicker.Accumulator
	store   *store.Store
	backend *fakeBackend
	balance *fakeBalance
	cache   *fakeCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	acc, err := clicker.New(st, staticTotals{}, nil, 1000, zap.NewNop())
	require.NoError(t, err)

	fb := &fakeBackend{}
	bal := &fakeBalance{lamports: 10 * minBalanceLamports}
	cache := &fakeCache{}

	coord, err := NewCoordinator(acc, fb, bal, &fakeFees{fee: 5000}, cache, st, nil,
		func(sig string) string { return "https://explorer.solana.com/tx/" + sig + "?cluster=mainnet-beta" },
		zap.NewNop())
	require.NoError(t, err)

	return &testEnv{coord: coord, acc: acc, store: st, backend: fb, balance: bal, cache: cache}
}

func testWallet() string {
	return solana.NewWallet().PublicKey().String()
}

func TestSubmitRequiresWallet(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.coord.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestSubmitRejectsZeroPending(t *testing.T) {
	env := newTestEnv(t)
	env.acc.SetWallet(testWallet())

	_, err := env.coord.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSubmit)
	assert.Zero(t, env.backend.writes, "backend must not be called")
}

func TestSubmitSuccess(t *testing.T) {
	env := newTestEnv(t)
	addr := testWallet()
	env.acc.SetWallet(addr)
	for i := 0; i < 5; i++ {
		env.acc.AddClick()
	}

	receipt, err := env.coord.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), receipt.Clicks)
	assert.Equal(t, uint64(5000), receipt.Fee)

	assert.Zero(t, env.acc.Pending(), "pending zeroed after success")

	recs := env.store.Transactions(addr)
	require.Len(t, recs, 1)
	assert.Equal(t, store.StatusConfirmed, recs[0].Status)
	assert.Equal(t, "test-signature", recs[0].Signature)
	assert.Contains(t, recs[0].ExplorerURL, "test-signature")

	assert.Equal(t, uint64(5), env.cache.bumps[addr], "optimistic bump applied")
	assert.Equal(t, []string{addr}, env.cache.scheduled, "delayed refresh scheduled")
}

func TestSubmitInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	env.balance.lamports = minBalanceLamports - 1
	env.acc.SetWallet(testWallet())
	env.acc.AddClick()

	_, err := env.coord.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(1), env.acc.Pending(), "pending intact")
	assert.Zero(t, env.backend.writes)
}

func TestSubmitBalanceLookupFailureProceeds(t *testing.T) {
	env := newTestEnv(t)
	env.balance.err = errors.New("rpc down")
	env.acc.SetWallet(testWallet())
	env.acc.AddClick()

	_, err := env.coord.Submit(context.Background())
	require.NoError(t, err, "a failed balance lookup must not block submission")
}

func TestSubmitBackendFailureKeepsPending(t *testing.T) {
	env := newTestEnv(t)
	env.backend.err = errors.New("send failed")
	addr := testWallet()
	env.acc.SetWallet(addr)
	env.acc.AddClick()
	env.acc.AddClick()

	_, err := env.coord.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(2), env.acc.Pending())
	assert.Empty(t, env.store.Transactions(addr), "no record for a failed submission")
	assert.False(t, env.coord.Submitting(), "flag released after failure")
}

func TestSubmitSignatureRejectionKeepsPending(t *testing.T) {
	env := newTestEnv(t)
	env.backend.err = wallet.ErrSignatureRejected
	env.acc.SetWallet(testWallet())
	env.acc.AddClick()

	_, err := env.coord.Submit(context.Background())
	assert.ErrorIs(t, err, wallet.ErrSignatureRejected)
	assert.Equal(t, uint64(1), env.acc.Pending())
}

func TestConcurrentSubmissionRejected(t *testing.T) {
	env := newTestEnv(t)
	env.acc.SetWallet(testWallet())
	env.acc.AddClick()

	block := make(chan struct{})
	env.backend.block = block

	done := make(chan error, 1)
	go func() {
		_, err := env.coord.Submit(context.Background())
		done <- err
	}()

	require.Eventually(t, env.coord.Submitting, time.Second, time.Millisecond)

	_, err := env.coord.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitting)

	close(block)
	require.NoError(t, <-done)
	assert.False(t, env.coord.Submitting())
}

type stubSender struct {
	sig solana.Signature
}

func (s *stubSender) SendInstructions(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	return s.sig, nil
}

// Exercises the production wiring end to end: the memo backend writes, the
// reader is the coordinator's snapshot cache, and the confirmed total after
// submitting N clicks must be exactly N, not double counted.
func TestSubmitCountsConfirmedClicksOnce(t *testing.T) {
	st, err := store.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	memo, err := backend.NewMemoBackend(&stubSender{sig: solana.Signature{7}}, st, zap.NewNop())
	require.NoError(t, err)
	reader, err := remote.NewReader(memo, st, nil, zap.NewNop())
	require.NoError(t, err)
	acc, err := clicker.New(st, reader, nil, 1000, zap.NewNop())
	require.NoError(t, err)
	coord, err := NewCoordinator(acc, memo, nil, nil, reader, st, nil, nil, zap.NewNop())
	require.NoError(t, err)

	addr := testWallet()
	acc.SetWallet(addr)
	for i := 0; i < 100; i++ {
		acc.AddClick()
	}

	receipt, err := coord.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), receipt.Clicks)

	assert.Equal(t, uint64(100), st.CachedChainClicks(addr))
	assert.Equal(t, uint64(100), reader.ConfirmedClicks(addr))
	assert.Zero(t, acc.Pending())

	// The next click continues the cumulative count from 100, so the
	// checkpoint at 1000 stays 900 clicks away.
	outcome := acc.AddClick()
	assert.Equal(t, uint64(101), outcome.Cumulative)
	assert.False(t, outcome.Checkpoint)
}

func TestLateCompletionPersistsUnderCapturedWallet(t *testing.T) {
	env := newTestEnv(t)
	walletA := testWallet()
	walletB := testWallet()
	env.acc.SetWallet(walletA)
	env.acc.AddClick()
	env.acc.AddClick()
	env.acc.AddClick()

	block := make(chan struct{})
	env.backend.block = block

	done := make(chan error, 1)
	go func() {
		_, err := env.coord.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, env.coord.Submitting, time.Second, time.Millisecond)

	// The user switches wallets while the submission is in flight.
	env.acc.SetWallet(walletB)
	close(block)
	require.NoError(t, <-done)

	assert.Zero(t, env.store.PendingClicks(walletA), "captured wallet's pending zeroed")
	require.Len(t, env.store.Transactions(walletA), 1, "record lands under the captured wallet")
	assert.Empty(t, env.store.Transactions(walletB))
	assert.Equal(t, uint64(3), env.cache.bumps[walletA])
}
