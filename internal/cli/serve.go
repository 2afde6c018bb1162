package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/execute007/x1punks/internal/config"
	"github.com/execute007/x1punks/internal/ledger"
	"github.com/execute007/x1punks/internal/pipeline"
	"github.com/execute007/x1punks/internal/punks"
	"github.com/execute007/x1punks/internal/server"
	"github.com/execute007/x1punks/internal/state"
	"github.com/execute007/x1punks/internal/wallet"
)

var (
	serveConfigPath string
	serveListen     string
	serveLogLevel   string
	serveLogFormat  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the X1 Punks mint server",
	Long: `Start the X1 Punks mint server.

The server exposes the mint API and the static frontend. Mint, inscription,
and upload state live in three JSON documents under the data directory.
The server wallet pays for every on-chain write; its secret key is read
from the WALLET_SECRET_KEY environment variable or from wallet.json.

Examples:
  x1punks serve
  x1punks serve --listen :8080 --config /etc/x1punks/config.toml`,
	Run: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveConfigPath, "config", envOrDefault("X1PUNKS_CONFIG", "config.toml"), "Path to the TOML config file")
	f.StringVar(&serveListen, "listen", "", "Listen address, overrides the config file")
	f.StringVar(&serveLogLevel, "log-level", envOrDefault("X1PUNKS_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	f.StringVar(&serveLogFormat, "log-format", envOrDefault("X1PUNKS_LOG_FORMAT", "json"), "Log format (json|text)")
}

func runServe(_ *cobra.Command, _ []string) {
	logger := newLogger(serveLogLevel, serveLogFormat)

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		exitError("%v", err)
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		exitError("create data directory %s: %v", cfg.DataDir, err)
	}

	payer, err := wallet.Load(cfg.WalletPath())
	if err != nil {
		exitError("load server wallet: %v", err)
	}

	traits, err := punks.LoadTraits(cfg.TraitsCSV)
	if err != nil {
		exitError("load traits: %v", err)
	}

	mints, err := state.OpenMintState(cfg.StatePath())
	if err != nil {
		exitError("open mint state: %v", err)
	}
	index, err := state.OpenInscriptionIndex(cfg.InscriptionsPath(), config.ProgramName)
	if err != nil {
		exitError("open inscription index: %v", err)
	}
	manifest, err := state.OpenManifest(cfg.ManifestPath())
	if err != nil {
		exitError("open arweave manifest: %v", err)
	}

	rpc, err := ledger.NewHTTPClient(cfg.RPCURL, cfg.InscriptionProgram)
	if err != nil {
		exitError("create ledger client: %v", err)
	}
	client := ledger.NewRetryClient(rpc, nil)

	pipe := pipeline.New(cfg, client, payer, traits, manifest, logger)
	srv := server.New(cfg, mints, index, pipe, traits, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Inscribing ten punks means forty confirmed transactions.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting x1punks server",
			"listen", cfg.Listen,
			"rpc", cfg.RPCURL,
			"wallet", payer.Address(),
			"minted", mints.Count(),
			"inscribed", index.Count(),
			"uploaded", manifest.Count(),
			"total_supply", config.TotalSupply)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
