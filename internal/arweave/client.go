// Package arweave uploads data to the Arweave permaweb through a public
// gateway, signing format-2 transactions with a local JWK keyfile.
package arweave

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is the contract with the Arweave gateway.
type Client interface {
	// UploadData signs and submits one data transaction and returns its id.
	// Content-Type is always tagged; extra tags are appended after it.
	UploadData(ctx context.Context, data []byte, contentType string, tags []Tag) (string, error)

	// Balance returns the wallet balance in winston.
	Balance(ctx context.Context) (string, error)

	// Address returns the uploading wallet's address.
	Address() string
}

// GatewayError is a non-2xx response from the gateway.
type GatewayError struct {
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Body)
}

// HTTPClient talks to an Arweave gateway such as https://arweave.net.
type HTTPClient struct {
	gateway    string
	wallet     *Wallet
	httpClient *http.Client
}

// NewHTTPClient creates a gateway client uploading on behalf of wallet.
func NewHTTPClient(gateway string, wallet *Wallet) *HTTPClient {
	return &HTTPClient{
		gateway:    strings.TrimRight(gateway, "/"),
		wallet:     wallet,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Address() string {
	return c.wallet.Address()
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gateway+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %w", path, &GatewayError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}
	return body, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gateway+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST %s: %w", path, &GatewayError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))})
	}
	return nil
}

// Balance returns the wallet's winston balance.
func (c *HTTPClient) Balance(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/wallet/"+c.wallet.Address()+"/balance")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// price asks the gateway for the reward needed to store size bytes.
func (c *HTTPClient) price(ctx context.Context, size int) (string, error) {
	body, err := c.get(ctx, "/price/"+strconv.Itoa(size))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// anchor fetches the last_tx anchor for a new transaction.
func (c *HTTPClient) anchor(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/tx_anchor")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// UploadData signs a transaction for data, submits its header, and then
// posts every chunk. The transaction id is stable once signed, so a retry
// of a failed upload produces a fresh transaction rather than resuming.
func (c *HTTPClient) UploadData(ctx context.Context, data []byte, contentType string, tags []Tag) (string, error) {
	anchor, err := c.anchor(ctx)
	if err != nil {
		return "", err
	}
	reward, err := c.price(ctx, len(data))
	if err != nil {
		return "", err
	}

	allTags := append([]Tag{{Name: "Content-Type", Value: contentType}}, tags...)
	tx, err := newTransaction(c.wallet, data, allTags, anchor, reward)
	if err != nil {
		return "", err
	}

	if err := c.post(ctx, "/tx", tx); err != nil {
		return "", err
	}

	for _, ch := range tx.chunks {
		payload := map[string]string{
			"data_root": tx.DataRoot,
			"data_size": tx.DataSize,
			"data_path": base64.RawURLEncoding.EncodeToString(ch.dataPath),
			"offset":    strconv.Itoa(ch.offset),
			"chunk":     base64.RawURLEncoding.EncodeToString(ch.data),
		}
		if err := c.post(ctx, "/chunk", payload); err != nil {
			return "", fmt.Errorf("upload chunk at %d: %w", ch.offset, err)
		}
	}
	return tx.ID, nil
}

// WinstonToAR renders a winston amount as AR for display. One AR is 10^12
// winston.
func WinstonToAR(winston string) string {
	w, ok := new(big.Rat).SetString(winston)
	if !ok {
		return "0"
	}
	ar := new(big.Rat).Quo(w, big.NewRat(1_000_000_000_000, 1))
	return strings.TrimRight(strings.TrimRight(ar.FloatString(6), "0"), ".")
}
