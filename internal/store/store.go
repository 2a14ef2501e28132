// internal/store/store.go
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Transaction record statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// MaxTransactionLog bounds the per-wallet transaction history.
const MaxTransactionLog = 20

// Namespaces, one JSON file each, keyed by wallet address.
const (
	nsPendingClicks = "pending_clicks"
	nsTransactions  = "transactions"
	nsChainClicks   = "chain_clicks"
	nsDBClicks      = "db_clicks"
	nsTokenBalance  = "token_balance"
)

// TransactionRecord is one entry in the per-wallet submission history.
type TransactionRecord struct {
	Signature   string    `json:"signature"`
	Clicks      uint64    `json:"clicks"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	ExplorerURL string    `json:"explorer_url,omitempty"`
}

// TokenBalanceEntry is the persisted token balance cache value.
type TokenBalanceEntry struct {
	Balance   float64   `json:"balance"`
	Decimals  uint8     `json:"decimals"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store persists per-wallet engine state as small JSON files in a data
// directory. Every value is independent per wallet; writes are atomic
// (temp file + rename) so a crash never leaves a half-written file.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// New creates the data directory if needed and returns a store rooted there.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger.Named("store")}, nil
}

func (s *Store) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

// load reads a namespace file. A missing file is an empty map; a corrupt
// file is logged and treated as empty rather than wedging the engine.
func (s *Store) load(namespace string) map[string]json.RawMessage {
	data, err := os.ReadFile(s.path(namespace))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read state file",
				zap.String("namespace", namespace), zap.Error(err))
		}
		return map[string]json.RawMessage{}
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("Discarding corrupt state file",
			zap.String("namespace", namespace), zap.Error(err))
		return map[string]json.RawMessage{}
	}
	return m
}

func (s *Store) save(namespace string, m map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s state: %w", namespace, err)
	}

	target := s.path(namespace)
	tmp, err := os.CreateTemp(s.dir, namespace+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", namespace, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s state: %w", namespace, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", namespace, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s state: %w", namespace, err)
	}
	return nil
}

func (s *Store) getUint64(namespace, wallet string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.load(namespace)[wallet]
	if !ok {
		return 0
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

func (s *Store) setUint64(namespace, wallet string, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load(namespace)
	raw, _ := json.Marshal(n)
	m[wallet] = raw
	return s.save(namespace, m)
}

// PendingClicks returns the unsubmitted click count for a wallet.
func (s *Store) PendingClicks(wallet string) uint64 {
	return s.getUint64(nsPendingClicks, wallet)
}

// SetPendingClicks persists the unsubmitted click count for a wallet.
func (s *Store) SetPendingClicks(wallet string, n uint64) error {
	return s.setUint64(nsPendingClicks, wallet, n)
}

// CachedChainClicks returns the last known on-chain click total.
func (s *Store) CachedChainClicks(wallet string) uint64 {
	return s.getUint64(nsChainClicks, wallet)
}

// SetCachedChainClicks records the on-chain click total.
func (s *Store) SetCachedChainClicks(wallet string, n uint64) error {
	return s.setUint64(nsChainClicks, wallet, n)
}

// CachedDatabaseClicks returns the last known database click total.
func (s *Store) CachedDatabaseClicks(wallet string) uint64 {
	return s.getUint64(nsDBClicks, wallet)
}

// SetCachedDatabaseClicks records the database click total.
func (s *Store) SetCachedDatabaseClicks(wallet string, n uint64) error {
	return s.setUint64(nsDBClicks, wallet, n)
}

// Transactions returns the wallet's submission history, most recent first.
func (s *Store) Transactions(wallet string) []TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.load(nsTransactions)[wallet]
	if !ok {
		return nil
	}
	var recs []TransactionRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil
	}
	return recs
}

// AppendTransaction prepends a record and trims the log to MaxTransactionLog.
func (s *Store) AppendTransaction(wallet string, rec TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load(nsTransactions)

	var recs []TransactionRecord
	if raw, ok := m[wallet]; ok {
		_ = json.Unmarshal(raw, &recs)
	}

	recs = append([]TransactionRecord{rec}, recs...)
	if len(recs) > MaxTransactionLog {
		recs = recs[:MaxTransactionLog]
	}

	raw, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to encode transaction log: %w", err)
	}
	m[wallet] = raw
	return s.save(nsTransactions, m)
}

// UpdateTransactionStatus moves a pending record to confirmed or failed.
// Records that already left the pending state are never rewritten.
func (s *Store) UpdateTransactionStatus(wallet, signature, status string) error {
	if status != StatusConfirmed && status != StatusFailed {
		return fmt.Errorf("invalid target status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load(nsTransactions)
	raw, ok := m[wallet]
	if !ok {
		return nil
	}

	var recs []TransactionRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil
	}

	changed := false
	for i := range recs {
		if recs[i].Signature == signature && recs[i].Status == StatusPending {
			recs[i].Status = status
			changed = true
		}
	}
	if !changed {
		return nil
	}

	encoded, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to encode transaction log: %w", err)
	}
	m[wallet] = encoded
	return s.save(nsTransactions, m)
}

// TokenBalance returns the persisted token balance cache entry.
func (s *Store) TokenBalance(wallet string) (TokenBalanceEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.load(nsTokenBalance)[wallet]
	if !ok {
		return TokenBalanceEntry{}, false
	}
	var e TokenBalanceEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return TokenBalanceEntry{}, false
	}
	return e, true
}

// SetTokenBalance persists a token balance cache entry.
func (s *Store) SetTokenBalance(wallet string, e TokenBalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.load(nsTokenBalance)
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode token balance entry: %w", err)
	}
	m[wallet] = raw
	return s.save(nsTokenBalance, m)
}
