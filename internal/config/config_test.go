package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, "https://rpc.testnet.x1.xyz", cfg.RPCURL)
	assert.Equal(t, 5, cfg.UploadGroupSize)
	assert.Equal(t, 2*time.Second, cfg.UploadGroupPause)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x1punks.toml")
	content := `
listen = ":8080"
rpc_url = "http://localhost:8899"
upload_group_size = 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "http://localhost:8899", cfg.RPCURL)
	assert.Equal(t, 10, cfg.UploadGroupSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, "https://arweave.net", cfg.ArweaveGateway)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x1punks.toml")
	require.NoError(t, os.WriteFile(path, []byte(`rpc_url = "http://file:1"`), 0644))

	t.Setenv("X1PUNKS_RPC_URL", "http://env:2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:2", cfg.RPCURL)
}

func TestLoad_PortEnvFallback(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Listen)
}

func TestLoad_InvalidGroupSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x1punks.toml")
	require.NoError(t, os.WriteFile(path, []byte(`upload_group_size = 0`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Paths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/x1punks"

	assert.Equal(t, "/var/lib/x1punks/mint-state.json", cfg.StatePath())
	assert.Equal(t, "/var/lib/x1punks/inscriptions-index.json", cfg.InscriptionsPath())
	assert.Equal(t, "/var/lib/x1punks/arweave-manifest.json", cfg.ManifestPath())
	assert.Equal(t, "/var/lib/x1punks/wallet.json", cfg.WalletPath())
	assert.Equal(t, "/var/lib/x1punks/arweave-wallet.json", cfg.ArweaveWalletPath())
}

func TestConfig_FallbackImage(t *testing.T) {
	cfg := Default()
	assert.Equal(t,
		"https://raw.githubusercontent.com/Execute007/x1punks-images/master/generated/punk_42.png",
		cfg.FallbackImage(42))
}
