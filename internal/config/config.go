// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// BackendKind selects where click batches are written.
type BackendKind string

const (
	BackendDatabase BackendKind = "database"
	BackendMemo     BackendKind = "memo"
	BackendProgram  BackendKind = "program"
	BackendHybrid   BackendKind = "hybrid"
)

const (
	// DefaultProgramID is the deployed clicker program.
	DefaultProgramID = "Gbfg24vZ7pfr9zZAixC4aXxt6JB5X1zYwSpQXBAvYL4t"
	// DefaultTokenMint is the OBGC token mint.
	DefaultTokenMint = "HNnmV7LMStogJC4PoTj6doSHZtWdCeExMSzBAukEpump"

	DefaultCheckpointInterval = 1000
	DefaultRefreshIntervalSec = 10

	minAPIKeyLength = 10
	apiKeyPlacehold = "your_helius_api_key"
)

// DefaultRPCList is the public endpoint fallback chain, ordered by observed
// reliability. Premium endpoints are always tried before any of these.
var DefaultRPCList = []string{
	"https://api.mainnet-beta.solana.com",
	"https://solana-rpc.publicnode.com",
	"https://rpc.ankr.com/solana",
	"https://solana.blockpi.network/v1/rpc/public",
	"https://api.blockeden.xyz/solana/public",
	"https://solana.drpc.org",
	"https://endpoints.omniatech.io/v1/sol/mainnet/public",
}

// Config holds all runtime settings.
type Config struct {
	Network            string   `mapstructure:"network"`
	HeliusAPIKey       string   `mapstructure:"helius_api_key"`
	HeliusRPCURL       string   `mapstructure:"helius_rpc_url"`
	RPCList            []string `mapstructure:"rpc_list"`
	PostgresURL        string   `mapstructure:"postgres_url"`
	ProgramID          string   `mapstructure:"program_id"`
	TokenMint          string   `mapstructure:"token_mint"`
	WalletKey          string   `mapstructure:"wallet_key"`
	Backend            string   `mapstructure:"backend"`
	DataDir            string   `mapstructure:"data_dir"`
	CheckpointInterval int      `mapstructure:"checkpoint_interval"`
	RefreshIntervalSec int      `mapstructure:"refresh_interval_sec"`
	DebugLogging       bool     `mapstructure:"debug_logging"`
	LogFile            string   `mapstructure:"log_file"`
}

// Load reads configuration from the given file (optional) and the
// environment. Missing remote credentials are not fatal; the service
// degrades to public endpoints and disables the database gateway.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"network":              "mainnet",
		"rpc_list":             DefaultRPCList,
		"program_id":           DefaultProgramID,
		"token_mint":           DefaultTokenMint,
		"backend":              string(BackendHybrid),
		"data_dir":             "data",
		"checkpoint_interval":  DefaultCheckpointInterval,
		"refresh_interval_sec": DefaultRefreshIntervalSec,
		"debug_logging":        false,
		"log_file":             "logs/clicker.log",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	switch cfg.Network {
	case "mainnet", "devnet", "testnet":
	default:
		return fmt.Errorf("invalid network %q: must be mainnet, devnet or testnet", cfg.Network)
	}

	switch BackendKind(cfg.Backend) {
	case BackendDatabase, BackendMemo, BackendProgram, BackendHybrid:
	default:
		return fmt.Errorf("invalid backend %q: must be database, memo, program or hybrid", cfg.Backend)
	}

	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.HeliusRPCURL != "" {
		if err := validateURLWithCache(cfg.HeliusRPCURL, "http"); err != nil {
			return fmt.Errorf("invalid Helius RPC URL: %w", err)
		}
	}

	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.CheckpointInterval <= 0 {
		return errors.New("invalid checkpoint_interval")
	}
	if cfg.RefreshIntervalSec <= 0 {
		return errors.New("invalid refresh_interval_sec")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("OBGC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if key := v.GetString("HELIUS_API_KEY"); key != "" {
		cfg.HeliusAPIKey = key
	}
	if dsn := v.GetString("POSTGRES_URL"); dsn != "" {
		cfg.PostgresURL = dsn
	}
	if wk := v.GetString("WALLET_KEY"); wk != "" {
		cfg.WalletKey = wk
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}

// HeliusConfigured reports whether the premium API key looks real rather
// than empty or a placeholder copied from the sample env file.
func (c *Config) HeliusConfigured() bool {
	key := strings.TrimSpace(c.HeliusAPIKey)
	if key == "" || strings.EqualFold(key, apiKeyPlacehold) {
		return false
	}
	return len(key) > minAPIKeyLength
}

// HeliusEndpoint returns the full premium RPC URL, or "" when the key is
// not properly configured.
func (c *Config) HeliusEndpoint() string {
	if !c.HeliusConfigured() {
		return ""
	}
	if c.HeliusRPCURL != "" {
		return c.HeliusRPCURL
	}
	host := "mainnet.helius-rpc.com"
	if c.Network == "devnet" {
		host = "devnet.helius-rpc.com"
	}
	return fmt.Sprintf("https://%s/?api-key=%s", host, strings.TrimSpace(c.HeliusAPIKey))
}

// DatabaseConfigured reports whether a Postgres DSN is present.
func (c *Config) DatabaseConfigured() bool {
	return strings.TrimSpace(c.PostgresURL) != ""
}

// BackendKind returns the validated backend selector.
func (c *Config) BackendKind() BackendKind {
	return BackendKind(c.Backend)
}

// ExplorerTxURL builds a Solana explorer link for a transaction signature.
func (c *Config) ExplorerTxURL(signature string) string {
	cluster := "mainnet-beta"
	switch c.Network {
	case "devnet":
		cluster = "devnet"
	case "testnet":
		cluster = "testnet"
	}
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=%s", signature, cluster)
}
