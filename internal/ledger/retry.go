package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/execute007/x1punks/internal/wallet"
)

// RetryConfig configures retry behavior for transient errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient wraps a Client with automatic retry on transient errors.
type RetryClient struct {
	inner  Client
	config *RetryConfig
}

// NewRetryClient creates a RetryClient that wraps the given Client.
func NewRetryClient(inner Client, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, config: cfg}
}

var _ Client = (*RetryClient)(nil)

// isTransient returns true for errors that are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *RPCError
	if errors.As(err, &re) {
		// The node understood the request and rejected it.
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status >= 500 || he.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true // network errors are transient
}

// backoff computes the delay for the given attempt with jitter.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	base := float64(rc.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rc.config.MaxBackoff) {
		base = float64(rc.config.MaxBackoff)
	}
	jitter := base * rc.config.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries transient errors.
func (rc *RetryClient) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rc.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < rc.config.MaxRetries {
			d := rc.backoff(attempt)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rc.config.MaxRetries)
}

func (rc *RetryClient) CreateAssetRecord(ctx context.Context, payer *wallet.Wallet, name, symbol, uri, owner string) (addr string, err error) {
	err = rc.retry(ctx, "create asset record", func() error {
		addr, err = rc.inner.CreateAssetRecord(ctx, payer, name, symbol, uri, owner)
		return err
	})
	return
}

func (rc *RetryClient) CreateDataAllocation(ctx context.Context, payer *wallet.Wallet, data []byte) (alloc *Allocation, err error) {
	err = rc.retry(ctx, "create data allocation", func() error {
		alloc, err = rc.inner.CreateDataAllocation(ctx, payer, data)
		return err
	})
	return
}

func (rc *RetryClient) SubmitSelfTransfer(ctx context.Context, payer *wallet.Wallet) (sig string, err error) {
	err = rc.retry(ctx, "submit self transfer", func() error {
		sig, err = rc.inner.SubmitSelfTransfer(ctx, payer)
		return err
	})
	return
}

func (rc *RetryClient) MinimumBalanceForRentExemption(ctx context.Context, size int) (lamports uint64, err error) {
	err = rc.retry(ctx, "rent exemption query", func() error {
		lamports, err = rc.inner.MinimumBalanceForRentExemption(ctx, size)
		return err
	})
	return
}

func (rc *RetryClient) Balance(ctx context.Context, address string) (lamports uint64, err error) {
	err = rc.retry(ctx, "balance query", func() error {
		lamports, err = rc.inner.Balance(ctx, address)
		return err
	})
	return
}
