package backend

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/store"
)

func TestMemoPayloadRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := NewMemoPayload("SoMeWaLLeT", 250, at)

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded MemoPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1B-Global-Clicks", decoded.App)
	assert.Equal(t, "SoMeWaLLeT", decoded.Wallet)
	assert.Equal(t, uint64(250), decoded.Clicks)
	assert.Equal(t, at.UnixMilli(), decoded.Timestamp)
	assert.Equal(t, "1.0", decoded.Version)
}

func TestMemoInstruction(t *testing.T) {
	signer := solana.NewWallet().PublicKey()
	payload := NewMemoPayload(signer.String(), 10, time.Now())

	ix, err := MemoInstruction(payload, signer)
	require.NoError(t, err)

	assert.Equal(t, memoProgramID, ix.ProgramID())
	accounts := ix.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, signer, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)

	data, err := ix.Data()
	require.NoError(t, err)
	var decoded MemoPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestComputeUnitPriceInstruction(t *testing.T) {
	ix := ComputeUnitPriceInstruction(12345)

	assert.Equal(t, computeBudgetProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 9)
	assert.Equal(t, byte(3), data[0])
	assert.Equal(t, uint64(12345), binary.LittleEndian.Uint64(data[1:]))
}

func TestDiscriminators(t *testing.T) {
	submit := InstructionDiscriminator("submit_clicks")
	create := InstructionDiscriminator("create_user")
	assert.Len(t, submit, 8)
	assert.NotEqual(t, submit, create, "different instructions get different tags")
	assert.Equal(t, submit, InstructionDiscriminator("submit_clicks"), "derivation is deterministic")

	userAcct := AccountDiscriminator("UserState")
	globalAcct := AccountDiscriminator("GlobalState")
	assert.Len(t, userAcct, 8)
	assert.NotEqual(t, userAcct, globalAcct)
	assert.NotEqual(t, userAcct, InstructionDiscriminator("UserState"),
		"account and instruction namespaces differ")
}

func TestPDADerivation(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58(config.DefaultProgramID)

	global, err := GlobalStatePDA(programID)
	require.NoError(t, err)
	again, err := GlobalStatePDA(programID)
	require.NoError(t, err)
	assert.Equal(t, global, again)

	userA := solana.NewWallet().PublicKey()
	userB := solana.NewWallet().PublicKey()
	pdaA, err := UserStatePDA(programID, userA)
	require.NoError(t, err)
	pdaB, err := UserStatePDA(programID, userB)
	require.NoError(t, err)
	assert.NotEqual(t, pdaA, pdaB, "each user gets a distinct state account")
	assert.NotEqual(t, global, pdaA)
}

func TestSortLeaderboard(t *testing.T) {
	entries := []LeaderboardEntry{
		{Wallet: "bbb", Clicks: 100},
		{Wallet: "aaa", Clicks: 100},
		{Wallet: "ccc", Clicks: 500},
		{Wallet: "ddd", Clicks: 1},
	}
	SortLeaderboard(entries)

	assert.Equal(t, "ccc", entries[0].Wallet)
	assert.Equal(t, "aaa", entries[1].Wallet, "equal scores tie-break by address")
	assert.Equal(t, "bbb", entries[2].Wallet)
	assert.Equal(t, "ddd", entries[3].Wallet)
}

func TestRankOf(t *testing.T) {
	entries := []LeaderboardEntry{
		{Wallet: "ccc", Clicks: 500},
		{Wallet: "aaa", Clicks: 100},
	}
	assert.Equal(t, 1, RankOf(entries, "ccc", 500))
	assert.Equal(t, 2, RankOf(entries, "aaa", 100))
	assert.Equal(t, 0, RankOf(entries, "zzz", 50), "absent wallet has no rank")
}

type fakeChain struct {
	receipt *Receipt
	snap    *Snapshot
	err     error
	writes  int
}

func (f *fakeChain) Kind() config.BackendKind { return config.BackendMemo }

func (f *fakeChain) Read(ctx context.Context, wallet string) (*Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeChain) Write(ctx context.Context, wallet string, clicks, fee uint64) (*Receipt, error) {
	f.writes++
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

type fakeMirror struct {
	snap    *Snapshot
	addErr  error
	readErr error
	added   []string
}

func (f *fakeMirror) AddUserClicks(ctx context.Context, wallet string, clicks uint64, signature string) error {
	f.added = append(f.added, signature)
	return f.addErr
}

func (f *fakeMirror) Read(ctx context.Context, wallet string) (*Snapshot, error) {
	return f.snap, f.readErr
}

func TestHybridWriteMirrorFailureTolerated(t *testing.T) {
	chain := &fakeChain{receipt: &Receipt{Signature: "sig-1", Clicks: 10}}
	mirror := &fakeMirror{addErr: errors.New("db down")}
	hybrid, err := NewHybridBackend(chain, mirror, zap.NewNop())
	require.NoError(t, err)

	receipt, err := hybrid.Write(context.Background(), "wallet", 10, 5000)
	require.NoError(t, err, "mirror failure must not fail the write")
	assert.Equal(t, "sig-1", receipt.Signature)
	assert.Equal(t, []string{"sig-1"}, mirror.added)
}

func TestHybridWriteChainFailureStops(t *testing.T) {
	chain := &fakeChain{err: errors.New("rpc down")}
	mirror := &fakeMirror{}
	hybrid, err := NewHybridBackend(chain, mirror, zap.NewNop())
	require.NoError(t, err)

	_, err = hybrid.Write(context.Background(), "wallet", 10, 5000)
	require.Error(t, err)
	assert.Empty(t, mirror.added, "no mirror write without a chain receipt")
}

func TestHybridReadMergesSources(t *testing.T) {
	chain := &fakeChain{snap: &Snapshot{BlockchainClicks: 300, UserClicks: 300}}
	mirror := &fakeMirror{snap: &Snapshot{
		TotalClicks:    9000,
		TotalUsers:     12,
		UserClicks:     280,
		DatabaseClicks: 280,
		UserRank:       3,
	}}
	hybrid, err := NewHybridBackend(chain, mirror, zap.NewNop())
	require.NoError(t, err)

	snap, err := hybrid.Read(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), snap.TotalClicks)
	assert.Equal(t, uint64(280), snap.DatabaseClicks)
	assert.Equal(t, uint64(300), snap.BlockchainClicks)
	assert.Equal(t, uint64(300), snap.UserClicks, "the larger source wins for the user total")
	assert.Equal(t, 3, snap.UserRank)
}

func TestHybridReadDatabaseFailureDegradesToChain(t *testing.T) {
	chain := &fakeChain{snap: &Snapshot{BlockchainClicks: 50, UserClicks: 50}}
	mirror := &fakeMirror{readErr: errors.New("db down")}
	hybrid, err := NewHybridBackend(chain, mirror, zap.NewNop())
	require.NoError(t, err)

	snap, err := hybrid.Read(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), snap.BlockchainClicks)
}

type fakeSender struct {
	sig  solana.Signature
	err  error
	sent [][]solana.Instruction
}

func (f *fakeSender) SendInstructions(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	f.sent = append(f.sent, instructions)
	return f.sig, f.err
}

func TestMemoBackendWrite(t *testing.T) {
	st, err := store.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	sender := &fakeSender{sig: solana.Signature{1, 2, 3}}
	b, err := NewMemoBackend(sender, st, zap.NewNop())
	require.NoError(t, err)

	walletAddr := solana.NewWallet().PublicKey().String()
	receipt, err := b.Write(context.Background(), walletAddr, 42, 7000)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), receipt.Clicks)
	assert.Equal(t, uint64(7000), receipt.Fee)
	assert.Equal(t, sender.sig.String(), receipt.Signature)

	require.Len(t, sender.sent, 1)
	require.Len(t, sender.sent[0], 2, "compute budget then memo instruction")
	assert.Equal(t, computeBudgetProgramID, sender.sent[0][0].ProgramID())
	assert.Equal(t, memoProgramID, sender.sent[0][1].ProgramID())

	assert.Zero(t, st.CachedChainClicks(walletAddr),
		"the coordinator owns the optimistic cache update, not the backend")
}

func TestMemoBackendWriteRejectsBadAddress(t *testing.T) {
	st, err := store.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	b, err := NewMemoBackend(&fakeSender{}, st, zap.NewNop())
	require.NoError(t, err)

	_, err = b.Write(context.Background(), "not-a-wallet", 1, 5000)
	assert.Error(t, err)
}

func TestSubmitClicksInstructionLayout(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58(config.DefaultProgramID)
	b := &ProgramBackend{programID: programID, logger: zap.NewNop()}

	user := solana.NewWallet().PublicKey()
	ix, err := b.submitClicksInstruction(user, 777)
	require.NoError(t, err)

	assert.Equal(t, programID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)
	assert.Equal(t, InstructionDiscriminator("submit_clicks"), data[:8])
	assert.Equal(t, uint64(777), binary.LittleEndian.Uint64(data[8:]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 3)
	userPDA, _ := UserStatePDA(programID, user)
	globalPDA, _ := GlobalStatePDA(programID)
	assert.Equal(t, userPDA, accounts[0].PublicKey)
	assert.Equal(t, globalPDA, accounts[1].PublicKey)
	assert.Equal(t, user, accounts[2].PublicKey)
	assert.True(t, accounts[2].IsSigner)
}
