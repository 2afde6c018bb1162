// Package config manages the x1punks configuration. It loads the optional
// TOML config file, overlays X1PUNKS_* environment variables, and exposes
// path helpers for the persisted state documents and asset payloads.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Collection constants. The supply is fixed; identifiers are [0, TotalSupply).
const (
	TotalSupply      = 10000
	ProgramName      = "X1 Punks"
	CollectionName   = "X1 Punk"
	CollectionSymbol = "X1PUNK"
)

// Well-known file names inside the data directory.
const (
	StateFile         = "mint-state.json"
	InscriptionsFile  = "inscriptions-index.json"
	ManifestFile      = "arweave-manifest.json"
	WalletFile        = "wallet.json"
	ArweaveWalletFile = "arweave-wallet.json"
)

// Config holds runtime configuration for both the mint server and the
// offline uploader.
type Config struct {
	Listen       string `toml:"listen"`
	RPCURL       string `toml:"rpc_url"`
	DataDir      string `toml:"data_dir"`
	PublicDir    string `toml:"public_dir"`
	GeneratedDir string `toml:"generated_dir"`
	TraitsCSV    string `toml:"traits_csv"`

	// DevWallet receives the mint fee paid client-side.
	DevWallet string `toml:"dev_wallet"`

	// InscriptionProgram is the on-chain program recorded in every
	// metadata document's inscription block.
	InscriptionProgram string `toml:"inscription_program"`

	// ArweaveGateway is the permanent-storage gateway base URL.
	ArweaveGateway string `toml:"arweave_gateway"`

	// FallbackImageURL is a printf pattern (one %d verb) used when an
	// identifier has no entry in the upload manifest yet.
	FallbackImageURL string `toml:"fallback_image_url"`

	// Uploader pacing.
	UploadGroupSize  int           `toml:"upload_group_size"`
	UploadGroupPause time.Duration `toml:"upload_group_pause"`
}

// Default returns the configuration the original deployment ran with.
func Default() *Config {
	return &Config{
		Listen:             ":3000",
		RPCURL:             "https://rpc.testnet.x1.xyz",
		DataDir:            ".",
		PublicDir:          "public",
		GeneratedDir:       "generated",
		TraitsCSV:          filepath.Join("punks.whitelabel", "punks.csv"),
		DevWallet:          "AKCzFidJWmD8deRfa5HTnboz4mpqP274oGKEMnkg346B",
		InscriptionProgram: "1NSCRfGeyo7wPUazGbaPBUsTM49e1k2aXewHGARfzSo",
		ArweaveGateway:     "https://arweave.net",
		FallbackImageURL:   "https://raw.githubusercontent.com/Execute007/x1punks-images/master/generated/punk_%d.png",
		UploadGroupSize:    5,
		UploadGroupPause:   2 * time.Second,
	}
}

// Load reads the config file at path (if it exists) on top of the defaults,
// then overlays environment variables. A missing file is not an error;
// the defaults plus environment are a complete configuration.
// A .env file in the working directory is loaded first, if present.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.UploadGroupSize < 1 {
		return nil, fmt.Errorf("upload_group_size must be >= 1, got %d", cfg.UploadGroupSize)
	}

	return cfg, nil
}

// applyEnv overlays X1PUNKS_* (and the original PORT) environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("X1PUNKS_LISTEN"); v != "" {
		c.Listen = v
	} else if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("X1PUNKS_RPC_URL"); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv("X1PUNKS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("X1PUNKS_GENERATED_DIR"); v != "" {
		c.GeneratedDir = v
	}
	if v := os.Getenv("X1PUNKS_ARWEAVE_GATEWAY"); v != "" {
		c.ArweaveGateway = v
	}
	if v := os.Getenv("X1PUNKS_UPLOAD_GROUP_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.UploadGroupSize = n
		}
	}
}

// StatePath returns the mint-state document path.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, StateFile)
}

// InscriptionsPath returns the inscription-index document path.
func (c *Config) InscriptionsPath() string {
	return filepath.Join(c.DataDir, InscriptionsFile)
}

// ManifestPath returns the upload-manifest document path.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, ManifestFile)
}

// WalletPath returns the ledger signing keypair path.
func (c *Config) WalletPath() string {
	return filepath.Join(c.DataDir, WalletFile)
}

// ArweaveWalletPath returns the permanent-storage JWK path.
func (c *Config) ArweaveWalletPath() string {
	return filepath.Join(c.DataDir, ArweaveWalletFile)
}

// FallbackImage returns the secondary image URL for an identifier not yet
// present in the upload manifest.
func (c *Config) FallbackImage(id int) string {
	return fmt.Sprintf(c.FallbackImageURL, id)
}
