package ledger

import (
	"context"
	"fmt"

	"github.com/execute007/x1punks/internal/wallet"
)

// MockClient is a mock implementation of Client for testing.
type MockClient struct {
	// Err can be set to make every method return an error.
	Err error
	// FailOn makes only the named method fail with Err ("" fails all).
	FailOn string
	// FailAssetAfter, when positive, fails CreateAssetRecord with Err
	// once that many records have succeeded.
	FailAssetAfter int
	// RentLamports is returned per byte by MinimumBalanceForRentExemption.
	RentLamports uint64
	// Balances stores lamport balances by address.
	Balances map[string]uint64

	// AssetRecords records every CreateAssetRecord call.
	AssetRecords []MockAssetRecord
	// Allocations records every CreateDataAllocation payload.
	Allocations [][]byte
	// SelfTransfers counts SubmitSelfTransfer calls.
	SelfTransfers int

	seq int
}

// MockAssetRecord captures the arguments of one CreateAssetRecord call.
type MockAssetRecord struct {
	Name   string
	Symbol string
	URI    string
	Owner  string
}

// NewMockClient creates a new MockClient for testing.
func NewMockClient() *MockClient {
	return &MockClient{
		RentLamports: 10,
		Balances:     make(map[string]uint64),
	}
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) fail(method string) error {
	if m.Err == nil {
		return nil
	}
	// FailAssetAfter narrows Err to CreateAssetRecord; other methods
	// keep succeeding unless FailOn names them explicitly.
	if m.FailAssetAfter > 0 && m.FailOn == "" {
		return nil
	}
	if m.FailOn == "" || m.FailOn == method {
		return m.Err
	}
	return nil
}

// CreateAssetRecord records the call and returns a sequential address.
func (m *MockClient) CreateAssetRecord(ctx context.Context, payer *wallet.Wallet, name, symbol, uri, owner string) (string, error) {
	if m.FailAssetAfter > 0 && len(m.AssetRecords) >= m.FailAssetAfter {
		return "", m.Err
	}
	if err := m.fail("CreateAssetRecord"); err != nil {
		return "", err
	}
	m.AssetRecords = append(m.AssetRecords, MockAssetRecord{Name: name, Symbol: symbol, URI: uri, Owner: owner})
	m.seq++
	return fmt.Sprintf("MockMint%d", m.seq), nil
}

// CreateDataAllocation records the payload and returns a sequential address.
func (m *MockClient) CreateDataAllocation(ctx context.Context, payer *wallet.Wallet, data []byte) (*Allocation, error) {
	if err := m.fail("CreateDataAllocation"); err != nil {
		return nil, err
	}
	m.Allocations = append(m.Allocations, data)
	m.seq++
	return &Allocation{
		Address:   fmt.Sprintf("MockAlloc%d", m.seq),
		Signature: fmt.Sprintf("MockSig%d", m.seq),
		Size:      len(data),
	}, nil
}

// SubmitSelfTransfer counts the call and returns a sequential signature.
func (m *MockClient) SubmitSelfTransfer(ctx context.Context, payer *wallet.Wallet) (string, error) {
	if err := m.fail("SubmitSelfTransfer"); err != nil {
		return "", err
	}
	m.SelfTransfers++
	m.seq++
	return fmt.Sprintf("MockMemo%d", m.seq), nil
}

// MinimumBalanceForRentExemption returns RentLamports per byte.
func (m *MockClient) MinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	if err := m.fail("MinimumBalanceForRentExemption"); err != nil {
		return 0, err
	}
	return m.RentLamports * uint64(size), nil
}

// Balance returns the configured balance for an address.
func (m *MockClient) Balance(ctx context.Context, address string) (uint64, error) {
	if err := m.fail("Balance"); err != nil {
		return 0, err
	}
	return m.Balances[address], nil
}
