package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, DefaultRPCList, cfg.RPCList)
	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
	assert.Equal(t, DefaultTokenMint, cfg.TokenMint)
	assert.Equal(t, BackendHybrid, cfg.BackendKind())
	assert.Equal(t, DefaultCheckpointInterval, cfg.CheckpointInterval)
	assert.False(t, cfg.HeliusConfigured())
	assert.False(t, cfg.DatabaseConfigured())
}

func TestHeliusConfigured(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"empty", "", false},
		{"placeholder", "your_helius_api_key", false},
		{"too short", "abc123", false},
		{"valid", "a1b2c3d4-e5f6-7890-abcd-ef1234567890", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{HeliusAPIKey: tt.key}
			assert.Equal(t, tt.want, cfg.HeliusConfigured())
		})
	}
}

func TestHeliusEndpoint(t *testing.T) {
	cfg := &Config{
		Network:      "mainnet",
		HeliusAPIKey: "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
	}
	assert.Equal(t,
		"https://mainnet.helius-rpc.com/?api-key=a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		cfg.HeliusEndpoint())

	cfg.HeliusAPIKey = ""
	assert.Empty(t, cfg.HeliusEndpoint())
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Network:            "mainnet",
			Backend:            string(BackendMemo),
			RPCList:            []string{"https://api.mainnet-beta.solana.com"},
			CheckpointInterval: 1000,
			RefreshIntervalSec: 10,
		}
	}

	cfg := base()
	cfg.Network = "localnet"
	assert.Error(t, validateConfig(cfg))

	cfg = base()
	cfg.Backend = "carrier-pigeon"
	assert.Error(t, validateConfig(cfg))

	cfg = base()
	cfg.RPCList = nil
	assert.Error(t, validateConfig(cfg))

	cfg = base()
	cfg.RPCList = []string{"ftp://example.com"}
	assert.Error(t, validateConfig(cfg))

	cfg = base()
	cfg.CheckpointInterval = 0
	assert.Error(t, validateConfig(cfg))

	assert.NoError(t, validateConfig(base()))
}

func TestExplorerTxURL(t *testing.T) {
	cfg := &Config{Network: "mainnet"}
	assert.Equal(t, "https://explorer.solana.com/tx/abc?cluster=mainnet-beta", cfg.ExplorerTxURL("abc"))

	cfg.Network = "devnet"
	assert.Equal(t, "https://explorer.solana.com/tx/abc?cluster=devnet", cfg.ExplorerTxURL("abc"))
}
