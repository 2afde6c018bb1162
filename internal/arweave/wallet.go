package arweave

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
)

// JWK is an Arweave RSA keyfile in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d"`
	P   string `json:"p"`
	Q   string `json:"q"`
	DP  string `json:"dp"`
	DQ  string `json:"dq"`
	QI  string `json:"qi"`
}

// Wallet holds the RSA key used to sign Arweave transactions.
type Wallet struct {
	key   *rsa.PrivateKey
	owner []byte // modulus bytes, the tx "owner" field
}

// LoadWallet reads a JWK keyfile. A missing file surfaces as os.ErrNotExist
// so callers can distinguish "no credentials" from a malformed keyfile.
func LoadWallet(path string) (*Wallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var jwk JWK
	if err := json.Unmarshal(raw, &jwk); err != nil {
		return nil, fmt.Errorf("parse keyfile %s: %w", path, err)
	}
	return FromJWK(&jwk)
}

// FromJWK reconstructs the RSA private key from its JWK components.
func FromJWK(jwk *JWK) (*Wallet, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	n, err := decodeBig(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := decodeBig(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	d, err := decodeBig(jwk.D)
	if err != nil {
		return nil, fmt.Errorf("decode private exponent: %w", err)
	}
	p, err := decodeBig(jwk.P)
	if err != nil {
		return nil, fmt.Errorf("decode prime p: %w", err)
	}
	q, err := decodeBig(jwk.Q)
	if err != nil {
		return nil, fmt.Errorf("decode prime q: %w", err)
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid RSA key: %w", err)
	}
	key.Precompute()

	return &Wallet{key: key, owner: n.Bytes()}, nil
}

// Address returns the wallet address: the SHA-256 of the modulus,
// base64url without padding.
func (w *Wallet) Address() string {
	h := sha256.Sum256(w.owner)
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Owner returns the base64url-encoded modulus.
func (w *Wallet) Owner() string {
	return base64.RawURLEncoding.EncodeToString(w.owner)
}

func decodeBig(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
