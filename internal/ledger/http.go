package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"github.com/execute007/x1punks/internal/wallet"
)

// HTTPClient implements Client over the node's JSON-RPC endpoint.
type HTTPClient struct {
	rpcURL string
	// inscriptionProgram owns minted asset records.
	inscriptionProgram []byte
	httpClient         *http.Client
	nextID             atomic.Uint64

	// confirmPoll and confirmTimeout bound the wait for confirmation.
	confirmPoll    time.Duration
	confirmTimeout time.Duration
}

// NewHTTPClient creates a JSON-RPC client for the given node URL.
func NewHTTPClient(rpcURL, inscriptionProgram string) (*HTTPClient, error) {
	program, err := base58.Decode(inscriptionProgram)
	if err != nil {
		return nil, fmt.Errorf("decode inscription program %q: %w", inscriptionProgram, err)
	}
	return &HTTPClient{
		rpcURL:             rpcURL,
		inscriptionProgram: program,
		httpClient:         &http.Client{Timeout: 60 * time.Second},
		confirmPoll:        time.Second,
		confirmTimeout:     90 * time.Second,
	}, nil
}

var _ Client = (*HTTPClient)(nil)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one JSON-RPC request and decodes the result into out.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %w", method, &HTTPError{Status: resp.StatusCode})
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("%s: %w", method, &RPCError{Code: rr.Error.Code, Message: rr.Error.Message})
	}
	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// latestBlockhash fetches the recent blockhash every transaction must carry.
func (c *HTTPClient) latestBlockhash(ctx context.Context) ([]byte, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return nil, err
	}
	hash, err := base58.Decode(result.Value.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	return hash, nil
}

// sendAndConfirm submits a signed transaction and polls until the network
// reports it confirmed.
func (c *HTTPClient) sendAndConfirm(ctx context.Context, tx []byte, sig string) error {
	params := []interface{}{
		base64.StdEncoding.EncodeToString(tx),
		map[string]interface{}{"encoding": "base64", "preflightCommitment": "confirmed"},
	}
	if err := c.call(ctx, "sendTransaction", params, nil); err != nil {
		return err
	}

	deadline := time.Now().Add(c.confirmTimeout)
	for {
		var result struct {
			Value []*struct {
				ConfirmationStatus string `json:"confirmationStatus"`
				Err                json.RawMessage
			} `json:"value"`
		}
		statusParams := []interface{}{[]string{sig}}
		if err := c.call(ctx, "getSignatureStatuses", statusParams, &result); err != nil {
			return err
		}
		if len(result.Value) > 0 && result.Value[0] != nil {
			st := result.Value[0]
			if st.Err != nil && string(st.Err) != "null" {
				return fmt.Errorf("transaction %s failed on-chain: %s", sig, st.Err)
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("transaction %s not confirmed after %s", sig, c.confirmTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.confirmPoll):
		}
	}
}

// submit builds, signs, sends, and confirms a transaction.
func (c *HTTPClient) submit(ctx context.Context, payer *wallet.Wallet, instrs []instruction, extraSigners ...*wallet.Wallet) (string, error) {
	blockhash, err := c.latestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	msg, signerKeys := buildMessage(instrs, payer.PublicKey(), blockhash)
	signers := append([]*wallet.Wallet{payer}, extraSigners...)
	tx, sig, err := signTransaction(msg, signerKeys, signers...)
	if err != nil {
		return "", err
	}

	if err := c.sendAndConfirm(ctx, tx, sig); err != nil {
		return "", err
	}
	return sig, nil
}

// CreateAssetRecord mints the asset record via the inscription program.
func (c *HTTPClient) CreateAssetRecord(ctx context.Context, payer *wallet.Wallet, name, symbol, uri, owner string) (string, error) {
	ownerKey, err := base58.Decode(owner)
	if err != nil {
		return "", fmt.Errorf("decode owner %q: %w", owner, err)
	}

	mint, err := wallet.Generate()
	if err != nil {
		return "", err
	}

	instr := createAssetInstruction(c.inscriptionProgram, payer, mint, ownerKey, name, symbol, uri)
	if _, err := c.submit(ctx, payer, []instruction{instr}, mint); err != nil {
		return "", fmt.Errorf("create asset record: %w", err)
	}
	return mint.Address(), nil
}

// CreateDataAllocation creates a rent-exempt account sized for data.
func (c *HTTPClient) CreateDataAllocation(ctx context.Context, payer *wallet.Wallet, data []byte) (*Allocation, error) {
	lamports, err := c.MinimumBalanceForRentExemption(ctx, len(data))
	if err != nil {
		return nil, err
	}

	account, err := wallet.Generate()
	if err != nil {
		return nil, err
	}

	// The payer wallet owns the allocation so only it can ever write there.
	instr := createAccountInstruction(payer, account, payer.PublicKey(), lamports, len(data))
	sig, err := c.submit(ctx, payer, []instruction{instr}, account)
	if err != nil {
		return nil, fmt.Errorf("create data allocation (%d bytes): %w", len(data), err)
	}

	return &Allocation{
		Address:   account.Address(),
		Signature: sig,
		Size:      len(data),
	}, nil
}

// SubmitSelfTransfer emits the zero-lamport linkage transaction.
func (c *HTTPClient) SubmitSelfTransfer(ctx context.Context, payer *wallet.Wallet) (string, error) {
	instr := transferInstruction(payer, payer.PublicKey(), 0)
	sig, err := c.submit(ctx, payer, []instruction{instr})
	if err != nil {
		return "", fmt.Errorf("submit linkage transfer: %w", err)
	}
	return sig, nil
}

// MinimumBalanceForRentExemption queries the rent floor for an allocation.
func (c *HTTPClient) MinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	var lamports uint64
	if err := c.call(ctx, "getMinimumBalanceForRentExemption", []interface{}{size}, &lamports); err != nil {
		return 0, err
	}
	return lamports, nil
}

// Balance returns the lamport balance of an address.
func (c *HTTPClient) Balance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	params := []interface{}{address, map[string]string{"commitment": "confirmed"}}
	if err := c.call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}
