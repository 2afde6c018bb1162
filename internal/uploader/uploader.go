// Package uploader pushes generated punk images to the permaweb in bounded
// groups, checkpointing progress to the manifest so an interrupted run can
// resume without re-uploading anything.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/execute007/x1punks/internal/arweave"
	"github.com/execute007/x1punks/internal/punks"
	"github.com/execute007/x1punks/internal/state"
)

// Options bounds one upload run.
type Options struct {
	// Start is the first punk id, inclusive.
	Start int
	// End is one past the last punk id.
	End int
	// GroupSize is how many uploads run concurrently per group.
	GroupSize int
	// Pause is the delay between groups. There is no delay after the
	// final group.
	Pause time.Duration
}

// Progress is called as the run advances. phase is "group", "uploaded", or
// "failed"; id is the punk (or the group number for "group"); detail is the
// permaweb URL on success or the error text on failure.
type Progress func(phase string, id int, detail string)

// Summary is the outcome of one run.
type Summary struct {
	Uploaded int
	Skipped  int
	Failed   int
}

// Uploader drives batch uploads against an Arweave client.
type Uploader struct {
	client       arweave.Client
	manifest     *state.Manifest
	generatedDir string
	log          *slog.Logger
}

// New creates an Uploader checkpointing into manifest.
func New(client arweave.Client, manifest *state.Manifest, generatedDir string, log *slog.Logger) *Uploader {
	return &Uploader{
		client:       client,
		manifest:     manifest,
		generatedDir: generatedDir,
		log:          log,
	}
}

// uploadOne pushes one punk image and returns its manifest record.
func (u *Uploader) uploadOne(ctx context.Context, id int) (state.UploadRecord, error) {
	data, err := os.ReadFile(punks.ImagePath(u.generatedDir, id))
	if err != nil {
		return state.UploadRecord{}, fmt.Errorf("read punk_%d.png: %w", id, err)
	}

	txID, err := u.client.UploadData(ctx, data, "image/png", []arweave.Tag{
		{Name: "App-Name", Value: "X1Punks"},
		{Name: "Punk-Id", Value: strconv.Itoa(id)},
		{Name: "Type", Value: "image"},
	})
	if err != nil {
		return state.UploadRecord{}, fmt.Errorf("upload punk_%d.png: %w", id, err)
	}

	return state.UploadRecord{
		ImageTxID:  txID,
		ImageURL:   "https://arweave.net/" + txID,
		ImageSize:  len(data),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Run uploads every punk in [opts.Start, opts.End) that the manifest does
// not already cover. Groups of opts.GroupSize run concurrently; one failed
// upload never aborts its group, it is reported and retried on the next
// run. The manifest is flushed after every group so a crash loses at most
// one group of work.
func (u *Uploader) Run(ctx context.Context, opts Options, progress Progress) (*Summary, error) {
	if progress == nil {
		progress = func(string, int, string) {}
	}
	if opts.GroupSize < 1 {
		opts.GroupSize = 1
	}

	summary := &Summary{}

	var pending []int
	for id := opts.Start; id < opts.End; id++ {
		if u.manifest.Has(id) {
			summary.Skipped++
			continue
		}
		pending = append(pending, id)
	}
	u.log.Info("upload run starting",
		"pending", len(pending), "skipped", summary.Skipped,
		"start", opts.Start, "end", opts.End)

	groupNum := 0
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		group := pending
		if len(group) > opts.GroupSize {
			group = group[:opts.GroupSize]
		}
		pending = pending[len(group):]
		groupNum++

		progress("group", groupNum, fmt.Sprintf("%d punks", len(group)))

		var mu sync.Mutex
		records := make(map[int]state.UploadRecord, len(group))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.GroupSize)
		for _, id := range group {
			g.Go(func() error {
				rec, err := u.uploadOne(gctx, id)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					summary.Failed++
					u.log.Warn("upload failed", "punk", id, "error", err)
					progress("failed", id, err.Error())
					// Recorded, not returned: the rest of the
					// group keeps going.
					return nil
				}
				records[id] = rec
				summary.Uploaded++
				progress("uploaded", id, rec.ImageURL)
				return nil
			})
		}
		g.Wait()

		if err := u.manifest.Merge(records); err != nil {
			return summary, fmt.Errorf("checkpoint manifest: %w", err)
		}

		if len(pending) > 0 && opts.Pause > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(opts.Pause):
			}
		}
	}

	u.log.Info("upload run finished",
		"uploaded", summary.Uploaded, "skipped", summary.Skipped, "failed", summary.Failed,
		"manifest", u.manifest.Count())
	return summary, nil
}
