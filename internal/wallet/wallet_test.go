package wallet

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}

func TestLoad_FromFile(t *testing.T) {
	priv := testKeypair(t)
	path := filepath.Join(t.TempDir(), "wallet.json")

	data, err := json.Marshal(walletFile{
		PublicKey: base58.Encode(priv.Public().(ed25519.PublicKey)),
		SecretKey: priv,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	w, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(priv.Public().(ed25519.PublicKey)), w.Address())
}

func TestLoad_FromEnv(t *testing.T) {
	priv := testKeypair(t)
	raw, err := json.Marshal([]byte(priv))
	require.NoError(t, err)
	t.Setenv(EnvSecretKey, string(raw))

	// Env wins even when the path does not exist.
	w, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(priv.Public().(ed25519.PublicKey)), w.Address())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFromSecretKey_WrongLength(t *testing.T) {
	_, err := FromSecretKey([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestWallet_SignVerifies(t *testing.T) {
	priv := testKeypair(t)
	w, err := FromSecretKey(priv)
	require.NoError(t, err)

	msg := []byte("linkage record")
	sig := w.Sign(msg)
	assert.True(t, ed25519.Verify(priv.Public().(ed25519.PublicKey), msg, sig))
}

func TestGenerate_UniqueAddresses(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), b.Address())
}
