// internal/backend/program.go
package backend

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/rpcpool"
)

const leaderboardSize = 10

// Anchor PDA seeds.
var (
	globalStateSeed = []byte("global_state")
	userStateSeed   = []byte("user_state")
)

// GlobalState mirrors the on-chain global counter account.
type GlobalState struct {
	TotalClicks uint64
	TotalUsers  uint64
	Authority   solana.PublicKey
	Bump        uint8
}

// UserState mirrors the on-chain per-user counter account.
type UserState struct {
	User               solana.PublicKey
	UserClicks         uint64
	LastClickTimestamp int64
	Bump               uint8
}

// InstructionDiscriminator derives the 8-byte Anchor instruction tag for a
// snake_case instruction name.
func InstructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// AccountDiscriminator derives the 8-byte Anchor account tag for a
// CamelCase account struct name.
func AccountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}

// GlobalStatePDA derives the singleton global state address.
func GlobalStatePDA(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{globalStateSeed}, programID)
	return addr, err
}

// UserStatePDA derives the per-user state address.
func UserStatePDA(programID, user solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{userStateSeed, user.Bytes()}, programID)
	return addr, err
}

func decodeAnchorAccount(data []byte, out interface{}) error {
	if len(data) < 8 {
		return fmt.Errorf("account data too short: %d bytes", len(data))
	}
	return bin.NewBorshDecoder(data[8:]).Decode(out)
}

// ProgramBackend writes click batches through the custom Anchor clicker
// program and reads totals from its accounts.
type ProgramBackend struct {
	client    *rpcpool.Client
	sender    Sender
	programID solana.PublicKey
	logger    *zap.Logger
}

var _ RemoteBackend = (*ProgramBackend)(nil)

func NewProgramBackend(client *rpcpool.Client, sender Sender, programID solana.PublicKey, logger *zap.Logger) (*ProgramBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if programID.IsZero() {
		return nil, fmt.Errorf("program id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramBackend{
		client:    client,
		sender:    sender,
		programID: programID,
		logger:    logger.Named("program-backend"),
	}, nil
}

func (b *ProgramBackend) Kind() config.BackendKind {
	return config.BackendProgram
}

func (b *ProgramBackend) fetchAccount(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	var data []byte
	err := b.client.Execute(ctx, "getAccountInfo", func(ctx context.Context, cl *solanarpc.Client) error {
		out, err := cl.GetAccountInfo(ctx, addr)
		if err != nil {
			return err
		}
		if out.Value == nil {
			data = nil
			return nil
		}
		data = out.Value.Data.GetBinary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GlobalState fetches and decodes the global counter, nil if uninitialized.
func (b *ProgramBackend) GlobalState(ctx context.Context) (*GlobalState, error) {
	pda, err := GlobalStatePDA(b.programID)
	if err != nil {
		return nil, err
	}
	data, err := b.fetchAccount(ctx, pda)
	if err != nil || data == nil {
		return nil, err
	}
	var state GlobalState
	if err := decodeAnchorAccount(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode global state: %w", err)
	}
	return &state, nil
}

// UserState fetches and decodes a user's counter, nil if the account does
// not exist yet.
func (b *ProgramBackend) UserState(ctx context.Context, user solana.PublicKey) (*UserState, error) {
	pda, err := UserStatePDA(b.programID, user)
	if err != nil {
		return nil, err
	}
	data, err := b.fetchAccount(ctx, pda)
	if err != nil || data == nil {
		return nil, err
	}
	var state UserState
	if err := decodeAnchorAccount(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode user state: %w", err)
	}
	return &state, nil
}

func (b *ProgramBackend) initializeInstruction(authority solana.PublicKey) (solana.Instruction, error) {
	global, err := GlobalStatePDA(b.programID)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		b.programID,
		[]*solana.AccountMeta{
			{PublicKey: global, IsWritable: true, IsSigner: false},
			{PublicKey: authority, IsWritable: true, IsSigner: true},
			{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
		},
		InstructionDiscriminator("initialize"),
	), nil
}

func (b *ProgramBackend) createUserInstruction(user solana.PublicKey) (solana.Instruction, error) {
	global, err := GlobalStatePDA(b.programID)
	if err != nil {
		return nil, err
	}
	userPDA, err := UserStatePDA(b.programID, user)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		b.programID,
		[]*solana.AccountMeta{
			{PublicKey: userPDA, IsWritable: true, IsSigner: false},
			{PublicKey: global, IsWritable: true, IsSigner: false},
			{PublicKey: user, IsWritable: true, IsSigner: true},
			{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
		},
		InstructionDiscriminator("create_user"),
	), nil
}

func (b *ProgramBackend) submitClicksInstruction(user solana.PublicKey, count uint64) (solana.Instruction, error) {
	global, err := GlobalStatePDA(b.programID)
	if err != nil {
		return nil, err
	}
	userPDA, err := UserStatePDA(b.programID, user)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, 16)
	data = append(data, InstructionDiscriminator("submit_clicks")...)
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], count)
	data = append(data, countBuf[:]...)

	return solana.NewInstruction(
		b.programID,
		[]*solana.AccountMeta{
			{PublicKey: userPDA, IsWritable: true, IsSigner: false},
			{PublicKey: global, IsWritable: true, IsSigner: false},
			{PublicKey: user, IsWritable: false, IsSigner: true},
		},
		data,
	), nil
}

// Initialize creates the global state account. Needed once per deployment.
func (b *ProgramBackend) Initialize(ctx context.Context, authority solana.PublicKey) (solana.Signature, error) {
	ix, err := b.initializeInstruction(authority)
	if err != nil {
		return solana.Signature{}, err
	}
	return b.sender.SendInstructions(ctx, []solana.Instruction{ix})
}

// ensureUserAccount creates the user state account when missing so a fresh
// wallet's first submission succeeds without a separate setup step.
func (b *ProgramBackend) ensureUserAccount(ctx context.Context, user solana.PublicKey, fee uint64) error {
	state, err := b.UserState(ctx, user)
	if err != nil {
		return err
	}
	if state != nil {
		return nil
	}

	b.logger.Info("User account missing, creating", zap.String("user", user.String()))
	ix, err := b.createUserInstruction(user)
	if err != nil {
		return err
	}
	_, err = b.sender.SendInstructions(ctx, []solana.Instruction{
		ComputeUnitPriceInstruction(fee),
		ix,
	})
	return err
}

func (b *ProgramBackend) Write(ctx context.Context, walletAddr string, clicks uint64, fee uint64) (*Receipt, error) {
	user, err := solana.PublicKeyFromBase58(walletAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %s: %w", walletAddr, err)
	}

	if err := b.ensureUserAccount(ctx, user, fee); err != nil {
		return nil, fmt.Errorf("failed to ensure user account: %w", err)
	}

	ix, err := b.submitClicksInstruction(user, clicks)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sig, err := b.sender.SendInstructions(ctx, []solana.Instruction{
		ComputeUnitPriceInstruction(fee),
		ix,
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("Click batch confirmed on chain",
		zap.String("signature", sig.String()),
		zap.Uint64("clicks", clicks))

	return &Receipt{
		Signature:   sig.String(),
		Clicks:      clicks,
		Fee:         fee,
		SubmittedAt: now,
	}, nil
}

func (b *ProgramBackend) Read(ctx context.Context, walletAddr string) (*Snapshot, error) {
	user, err := solana.PublicKeyFromBase58(walletAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %s: %w", walletAddr, err)
	}

	global, err := b.GlobalState(ctx)
	if err != nil {
		return nil, err
	}

	userState, err := b.UserState(ctx, user)
	if err != nil {
		return nil, err
	}

	leaderboard, err := b.Leaderboard(ctx)
	if err != nil {
		b.logger.Warn("Leaderboard fetch failed", zap.Error(err))
		leaderboard = nil
	}

	snap := &Snapshot{
		Leaderboard: leaderboard,
		FetchedAt:   time.Now(),
	}
	if global != nil {
		snap.TotalClicks = global.TotalClicks
		snap.TotalUsers = global.TotalUsers
	}
	if userState != nil {
		snap.UserClicks = userState.UserClicks
		snap.BlockchainClicks = userState.UserClicks
	}
	snap.UserRank = RankOf(leaderboard, walletAddr, snap.UserClicks)
	return snap, nil
}

// Leaderboard scans every user state account and ranks by clicks.
func (b *ProgramBackend) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := b.client.Execute(ctx, "getProgramAccounts", func(ctx context.Context, cl *solanarpc.Client) error {
		out, err := cl.GetProgramAccountsWithOpts(ctx, b.programID, &solanarpc.GetProgramAccountsOpts{
			Encoding: solana.EncodingBase64,
			Filters: []solanarpc.RPCFilter{
				{Memcmp: &solanarpc.RPCFilterMemcmp{
					Offset: 0,
					Bytes:  solana.Base58(AccountDiscriminator("UserState")),
				}},
			},
		})
		if err != nil {
			return err
		}

		entries = entries[:0]
		for _, acct := range out {
			var state UserState
			if err := decodeAnchorAccount(acct.Account.Data.GetBinary(), &state); err != nil {
				continue
			}
			entries = append(entries, LeaderboardEntry{
				Wallet: state.User.String(),
				Clicks: state.UserClicks,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	SortLeaderboard(entries)
	if len(entries) > leaderboardSize {
		entries = entries[:leaderboardSize]
	}
	return entries, nil
}

// SortLeaderboard orders entries by clicks descending with a stable
// address tie-break so equal scores render deterministically.
func SortLeaderboard(entries []LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Clicks != entries[j].Clicks {
			return entries[i].Clicks > entries[j].Clicks
		}
		return entries[i].Wallet < entries[j].Wallet
	})
}

// RankOf computes the 1-based rank of a wallet within the leaderboard,
// 0 when the wallet is outside the fetched window.
func RankOf(entries []LeaderboardEntry, wallet string, clicks uint64) int {
	for i, e := range entries {
		if e.Wallet == wallet {
			return i + 1
		}
	}
	return 0
}
