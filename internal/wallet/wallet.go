// Package wallet loads and holds the ledger signing keypair.
//
// The keypair pays for every on-chain operation the server performs; it is
// a single shared resource, so pipeline invocations that sign with it must
// be serialized by the caller.
package wallet

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// EnvSecretKey is the environment variable holding the secret key as a
// JSON array of 64 bytes, for deployments without a wallet file.
const EnvSecretKey = "WALLET_SECRET_KEY"

// Wallet is an ed25519 keypair identified by its base58 public key.
type Wallet struct {
	priv ed25519.PrivateKey
}

// walletFile matches the on-disk wallet.json layout.
type walletFile struct {
	PublicKey string `json:"publicKey"`
	SecretKey []byte `json:"secretKey"`
}

// Load reads the keypair from the WALLET_SECRET_KEY environment variable if
// set, otherwise from the given wallet.json path.
func Load(path string) (*Wallet, error) {
	if raw := os.Getenv(EnvSecretKey); raw != "" {
		var secret []byte
		if err := json.Unmarshal([]byte(raw), &secret); err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvSecretKey, err)
		}
		return fromSecretKey(secret)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet %s: %w", path, err)
	}

	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse wallet %s: %w", path, err)
	}

	return fromSecretKey(wf.SecretKey)
}

// FromSecretKey builds a wallet from a raw 64-byte ed25519 secret key.
func FromSecretKey(secret []byte) (*Wallet, error) {
	return fromSecretKey(secret)
}

// Generate creates a fresh keypair. Used for the throwaway account keys
// backing data allocations.
func Generate() (*Wallet, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Wallet{priv: priv}, nil
}

func fromSecretKey(secret []byte) (*Wallet, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}
	return &Wallet{priv: ed25519.PrivateKey(secret)}, nil
}

// Address returns the base58-encoded public key.
func (w *Wallet) Address() string {
	return base58.Encode(w.priv.Public().(ed25519.PublicKey))
}

// PublicKey returns the raw 32-byte public key.
func (w *Wallet) PublicKey() []byte {
	return w.priv.Public().(ed25519.PublicKey)
}

// Sign signs msg with the private key.
func (w *Wallet) Sign(msg []byte) []byte {
	return ed25519.Sign(w.priv, msg)
}
