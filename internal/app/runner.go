// internal/app/runner.go
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/backend"
	"github.com/bigyan313/OBGC-V19/internal/clicker"
	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/export"
	"github.com/bigyan313/OBGC-V19/internal/fees"
	"github.com/bigyan313/OBGC-V19/internal/logger"
	"github.com/bigyan313/OBGC-V19/internal/notify"
	"github.com/bigyan313/OBGC-V19/internal/remote"
	"github.com/bigyan313/OBGC-V19/internal/rpcpool"
	"github.com/bigyan313/OBGC-V19/internal/store"
	"github.com/bigyan313/OBGC-V19/internal/submit"
	"github.com/bigyan313/OBGC-V19/internal/tokenbalance"
	"github.com/bigyan313/OBGC-V19/internal/ui"
	"github.com/bigyan313/OBGC-V19/internal/wallet"
)

const feeRefreshTimeout = 10 * time.Second

// Runner wires the configuration into a running clicker application.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	shutdownCh chan os.Signal
}

// NewRunner creates a runner from a loaded configuration.
func NewRunner(cfg *config.Config, log *zap.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		logger:     logger.WithComponent(log, "app"),
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

// Run builds the engine and drives the TUI until shutdown.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("Signal received, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	st, err := store.New(r.cfg.DataDir, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}

	registry := rpcpool.NewRegistry(nil, r.logger)
	client, err := rpcpool.NewClient(rpcpool.BuildEndpoints(r.cfg), registry, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build rpc client: %w", err)
	}

	estimator := fees.NewEstimator(client, r.logger)
	client.SetFeeRefresher(func() {
		refreshCtx, refreshCancel := context.WithTimeout(runCtx, feeRefreshTimeout)
		defer refreshCancel()
		estimator.Refresh(refreshCtx)
	})

	var signer wallet.Wallet
	if r.cfg.WalletKey != "" {
		kp, err := wallet.NewKeypair(r.cfg.WalletKey)
		if err != nil {
			return fmt.Errorf("failed to load wallet key: %w", err)
		}
		signer = kp
		r.logger.Info("Wallet loaded", zap.String("address", kp.PublicKey().String()))
	}

	be, err := r.buildBackend(client, signer, st)
	if err != nil {
		return err
	}

	reader, err := remote.NewReader(be, st, nil, r.logger)
	if err != nil {
		return err
	}

	acc, err := clicker.New(st, reader, nil, uint64(r.cfg.CheckpointInterval), r.logger)
	if err != nil {
		return err
	}
	if signer != nil {
		acc.SetWallet(signer.PublicKey().String())
	}

	events := notify.NewChannelSink(32)
	dispatcher := notify.NewDispatcher(notify.Tee{events, notify.NewZapSink(r.logger)})

	coord, err := submit.NewCoordinator(acc, be, client, estimator, reader, st,
		dispatcher, r.cfg.ExplorerTxURL, r.logger)
	if err != nil {
		return err
	}

	balances, err := r.buildBalanceService(client, st)
	if err != nil {
		return err
	}

	model, err := ui.NewModel(runCtx, ui.Engine{
		Accumulator:  acc,
		Coordinator:  coord,
		Reader:       reader,
		Balances:     balances,
		Exporter:     export.NewBatchExporter(r.logger),
		Store:        st,
		Events:       events,
		ExportDir:    filepath.Join(r.cfg.DataDir, "exports"),
		PollInterval: time.Duration(r.cfg.RefreshIntervalSec) * time.Second,
		Logger:       r.logger,
	})
	if err != nil {
		return err
	}

	r.logger.Info("Starting clicker",
		zap.String("network", r.cfg.Network),
		zap.String("backend", string(r.cfg.BackendKind())))

	program := tea.NewProgram(model, tea.WithContext(runCtx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("ui terminated: %w", err)
	}
	return nil
}

// buildBackend assembles the remote backend for the configured kind.
func (r *Runner) buildBackend(client *rpcpool.Client, signer wallet.Wallet, st *store.Store) (backend.RemoteBackend, error) {
	kind := r.cfg.BackendKind()

	var db *backend.DatabaseBackend
	if r.cfg.DatabaseConfigured() {
		var err error
		db, err = backend.NewDatabaseBackend(r.cfg.PostgresURL, r.logger)
		if err != nil {
			if kind == config.BackendDatabase {
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}
			// Degrade to chain-only; the mirror is best effort.
			r.logger.Warn("Database unavailable, continuing without mirror", zap.Error(err))
			db = nil
		}
	}

	if kind == config.BackendDatabase {
		if db == nil {
			return nil, fmt.Errorf("database backend selected but postgres_url is not set")
		}
		return db, nil
	}

	// The remaining kinds all submit transactions and need a signer.
	if signer == nil {
		return nil, fmt.Errorf("backend %q requires wallet_key to sign transactions", kind)
	}
	sender, err := backend.NewChainSender(client, signer, r.logger)
	if err != nil {
		return nil, err
	}

	switch kind {
	case config.BackendMemo:
		return backend.NewMemoBackend(sender, st, r.logger)

	case config.BackendProgram:
		programID, err := solana.PublicKeyFromBase58(r.cfg.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("invalid program_id: %w", err)
		}
		return backend.NewProgramBackend(client, sender, programID, r.logger)

	case config.BackendHybrid:
		memo, err := backend.NewMemoBackend(sender, st, r.logger)
		if err != nil {
			return nil, err
		}
		var mirror backend.Mirror
		if db != nil {
			mirror = db
		}
		return backend.NewHybridBackend(memo, mirror, r.logger)
	}

	return nil, fmt.Errorf("unknown backend kind %q", kind)
}

func (r *Runner) buildBalanceService(client *rpcpool.Client, st *store.Store) (*tokenbalance.Service, error) {
	mint, err := solana.PublicKeyFromBase58(r.cfg.TokenMint)
	if err != nil {
		r.logger.Warn("Invalid token mint, balance display disabled", zap.Error(err))
		return nil, nil
	}
	fetcher, err := tokenbalance.NewRPCFetcher(client, mint)
	if err != nil {
		return nil, err
	}
	return tokenbalance.NewService(fetcher, st, nil, r.logger)
}
