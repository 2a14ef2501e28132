// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrSignatureRejected marks a signing refusal by the wallet holder, as
// opposed to a signing failure. Callers treat it as a user cancellation.
var ErrSignatureRejected = errors.New("signature request rejected by wallet")

// Wallet is the signing capability the engine depends on. Connected wallets
// can report their address and sign transactions; a holder may refuse to
// sign, surfaced as ErrSignatureRejected.
type Wallet interface {
	PublicKey() solana.PublicKey
	Connected() bool
	SignTransaction(tx *solana.Transaction) error
}

// Keypair is a local keypair-backed wallet.
type Keypair struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	ataCache   map[string]solana.PublicKey
}

var _ Wallet = (*Keypair)(nil)

// NewKeypair creates a wallet from a base58-encoded private key.
func NewKeypair(privateKeyBase58 string) (*Keypair, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Keypair{
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
		ataCache:   make(map[string]solana.PublicKey),
	}, nil
}

func (w *Keypair) PublicKey() solana.PublicKey {
	return w.publicKey
}

func (w *Keypair) Connected() bool {
	return true
}

// SignTransaction signs the transaction with the wallet's private key.
func (w *Keypair) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.publicKey) {
			return &w.privateKey
		}
		return nil
	})
	return err
}

// ATA returns the associated token account address for the given mint,
// computed once and cached.
func (w *Keypair) ATA(mint solana.PublicKey) (solana.PublicKey, error) {
	mintStr := mint.String()
	if ata, ok := w.ataCache[mintStr]; ok {
		return ata, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(w.publicKey, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.ataCache[mintStr] = ata
	return ata, nil
}

// String returns the wallet's public key.
func (w *Keypair) String() string {
	return w.publicKey.String()
}
