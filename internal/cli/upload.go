package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/execute007/x1punks/internal/arweave"
	"github.com/execute007/x1punks/internal/config"
	"github.com/execute007/x1punks/internal/state"
	"github.com/execute007/x1punks/internal/uploader"
)

var (
	uploadConfigPath string
	uploadStart      int
	uploadTest       bool
	uploadLogLevel   string
	uploadLogFormat  string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Batch-upload punk images to Arweave",
	Long: `Batch-upload the generated punk images to the Arweave permaweb.

Progress is checkpointed to the manifest after every group, so the command
can be interrupted and re-run: already-uploaded punks are skipped. Failed
uploads are reported but do not stop the run; re-running retries them.

The Arweave keyfile is read from arweave-wallet.json in the data directory.

Examples:
  x1punks upload              # upload all 10,000
  x1punks upload --test       # test with the first 5 punks
  x1punks upload --start=500  # resume from punk #500`,
	Run: runUpload,
}

func init() {
	f := uploadCmd.Flags()
	f.StringVar(&uploadConfigPath, "config", envOrDefault("X1PUNKS_CONFIG", "config.toml"), "Path to the TOML config file")
	f.IntVar(&uploadStart, "start", 0, "First punk id to upload")
	f.BoolVar(&uploadTest, "test", false, "Upload only the first 5 punks from --start")
	f.StringVar(&uploadLogLevel, "log-level", envOrDefault("X1PUNKS_LOG_LEVEL", "warn"), "Log level (debug|info|warn|error)")
	f.StringVar(&uploadLogFormat, "log-format", envOrDefault("X1PUNKS_LOG_FORMAT", "text"), "Log format (json|text)")
}

func runUpload(_ *cobra.Command, _ []string) {
	logger := newLogger(uploadLogLevel, uploadLogFormat)

	cfg, err := config.Load(uploadConfigPath)
	if err != nil {
		exitError("%v", err)
	}

	key, err := arweave.LoadWallet(cfg.ArweaveWalletPath())
	if err != nil {
		if os.IsNotExist(err) {
			exitError("%s not found", cfg.ArweaveWalletPath())
		}
		exitError("load arweave wallet: %v", err)
	}
	client := arweave.NewHTTPClient(cfg.ArweaveGateway, key)

	manifest, err := state.OpenManifest(cfg.ManifestPath())
	if err != nil {
		exitError("open manifest: %v", err)
	}

	end := config.TotalSupply
	if uploadTest {
		end = uploadStart + 5
		if end > config.TotalSupply {
			end = config.TotalSupply
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	cyan.Println("X1 Punks Arweave batch upload")
	fmt.Printf("Wallet:  %s\n", client.Address())
	if balance, err := client.Balance(ctx); err == nil {
		fmt.Printf("Balance: %s AR\n", arweave.WinstonToAR(balance))
	} else {
		logger.Warn("balance query failed", "error", err)
	}
	mode := "FULL UPLOAD"
	if uploadTest {
		mode = "TEST (5 punks)"
	}
	fmt.Printf("Range:   punk #%d → #%d (%d punks)\n", uploadStart, end-1, end-uploadStart)
	fmt.Printf("Mode:    %s\n\n", mode)

	u := uploader.New(client, manifest, cfg.GeneratedDir, logger)
	summary, err := u.Run(ctx, uploader.Options{
		Start:     uploadStart,
		End:       end,
		GroupSize: cfg.UploadGroupSize,
		Pause:     cfg.UploadGroupPause,
	}, func(phase string, id int, detail string) {
		switch phase {
		case "group":
			fmt.Printf("--- Group %d (%s) ---\n", id, detail)
		case "uploaded":
			green.Printf("  ✓ punk #%d → %s\n", id, detail)
		case "failed":
			red.Printf("  ✗ punk #%d: %s\n", id, detail)
		}
	})
	if err != nil {
		exitError("%v", err)
	}

	fmt.Println()
	cyan.Println("Upload complete")
	fmt.Printf("  Uploaded: %d\n", summary.Uploaded)
	fmt.Printf("  Skipped:  %d\n", summary.Skipped)
	fmt.Printf("  Failed:   %d\n", summary.Failed)
	fmt.Printf("  Total:    %d in manifest\n", manifest.Count())
	if balance, err := client.Balance(ctx); err == nil {
		fmt.Printf("  Remaining: %s AR\n", arweave.WinstonToAR(balance))
	}

	if summary.Failed > 0 {
		red.Printf("\n%d failed. Re-run to retry; already-uploaded punks are skipped.\n", summary.Failed)
	}
}
