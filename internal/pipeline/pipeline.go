// Package pipeline runs the four-step on-chain provisioning sequence for a
// single punk: mint the asset record, store the metadata JSON, store the
// image bytes, and record the linkage memo. Steps run strictly in order;
// the first failure aborts the rest.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/execute007/x1punks/internal/config"
	"github.com/execute007/x1punks/internal/ledger"
	"github.com/execute007/x1punks/internal/punks"
	"github.com/execute007/x1punks/internal/state"
	"github.com/execute007/x1punks/internal/wallet"
)

// ErrPayloadMissing means the generated image file for the punk does not
// exist, so there is nothing to inscribe.
var ErrPayloadMissing = errors.New("image payload missing")

// StepError reports which pipeline step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Provenance is everything the completed pipeline created on-chain.
type Provenance struct {
	MintAddress   string
	JSONAccount   string
	ImageAccount  string
	MemoSignature string
	JSONSize      int
	ImageSize     int
	ImageHash     string
	Metadata      *punks.Metadata
}

// Pipeline provisions punks against a ledger node.
type Pipeline struct {
	cfg      *config.Config
	ledger   ledger.Client
	payer    *wallet.Wallet
	traits   *punks.TraitTable
	manifest *state.Manifest
	log      *slog.Logger
}

// New creates a Pipeline. The manifest supplies permaweb image URLs for
// minted assets; punks without an uploaded image fall back to the
// configured placeholder URL.
func New(cfg *config.Config, lc ledger.Client, payer *wallet.Wallet, traits *punks.TraitTable, manifest *state.Manifest, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		ledger:   lc,
		payer:    payer,
		traits:   traits,
		manifest: manifest,
		log:      log,
	}
}

// ImageURL returns the permaweb URL for a punk's image, or the configured
// fallback when it has not been uploaded yet.
func (p *Pipeline) ImageURL(id int) string {
	if url, ok := p.manifest.ImageURL(id); ok {
		return url
	}
	return p.cfg.FallbackImage(id)
}

// Provision runs the full sequence for one punk and returns its on-chain
// provenance. Any returned error is a *StepError naming the failed step.
func (p *Pipeline) Provision(ctx context.Context, id int, recipient string) (*Provenance, error) {
	name := punks.Name(id)
	imageURL := p.ImageURL(id)
	log := p.log.With("punk", id, "recipient", recipient)

	log.Info("provisioning punk", "name", name)

	// Step 1: mint the ownership-bearing asset record to the recipient.
	mintAddr, err := p.ledger.CreateAssetRecord(ctx, p.payer, name, config.CollectionSymbol, imageURL, recipient)
	if err != nil {
		return nil, &StepError{Step: "create nft", Err: err}
	}
	log.Info("asset record created", "mint", mintAddr)

	// Step 2: store the metadata JSON in its own allocation.
	meta := punks.BuildMetadata(p.traits, id, p.cfg.InscriptionProgram)
	jsonBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, &StepError{Step: "store metadata", Err: err}
	}
	jsonAlloc, err := p.ledger.CreateDataAllocation(ctx, p.payer, jsonBytes)
	if err != nil {
		return nil, &StepError{Step: "store metadata", Err: err}
	}
	log.Info("metadata stored", "account", jsonAlloc.Address, "bytes", len(jsonBytes))

	// Step 3: store the image bytes.
	imageBytes, err := os.ReadFile(punks.ImagePath(p.cfg.GeneratedDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("%w: punk_%d.png", ErrPayloadMissing, id)
		}
		return nil, &StepError{Step: "store image", Err: err}
	}
	imageAlloc, err := p.ledger.CreateDataAllocation(ctx, p.payer, imageBytes)
	if err != nil {
		return nil, &StepError{Step: "store image", Err: err}
	}
	log.Info("image stored", "account", imageAlloc.Address, "bytes", len(imageBytes))

	// Step 4: the confirmed self transfer ties the three artifacts
	// together with a timestamped signature.
	memoSig, err := p.ledger.SubmitSelfTransfer(ctx, p.payer)
	if err != nil {
		return nil, &StepError{Step: "record memo", Err: err}
	}

	imageHash := sha256.Sum256(imageBytes)
	log.Info("punk fully inscribed", "mint", mintAddr, "memo", memoSig)

	return &Provenance{
		MintAddress:   mintAddr,
		JSONAccount:   jsonAlloc.Address,
		ImageAccount:  imageAlloc.Address,
		MemoSignature: memoSig,
		JSONSize:      len(jsonBytes),
		ImageSize:     len(imageBytes),
		ImageHash:     hex.EncodeToString(imageHash[:]),
		Metadata:      meta,
	}, nil
}
