// Package ledger talks to the distributed-ledger RPC node. The node is an
// opaque collaborator: this package frames the calls, signs the
// transactions, and waits for confirmation, but consensus and transaction
// validity are entirely the node's business.
package ledger

import (
	"context"
	"fmt"

	"github.com/execute007/x1punks/internal/wallet"
)

// Allocation is a rent-covered on-chain storage slot sized for one payload.
type Allocation struct {
	// Address of the created data account, base58.
	Address string
	// Signature of the confirmed creation transaction, base58.
	Signature string
	// Size of the payload the allocation was sized for, bytes.
	Size int
}

// Client is the contract with the ledger node. Every mutating call blocks
// until the transaction reaches network confirmation.
type Client interface {
	// CreateAssetRecord mints the ownership-bearing asset record for one
	// collection item, owned by the recipient. Returns the record address.
	CreateAssetRecord(ctx context.Context, payer *wallet.Wallet, name, symbol, uri, owner string) (string, error)

	// CreateDataAllocation creates an immutable, rent-covered storage
	// allocation sized for data, funded by the payer.
	CreateDataAllocation(ctx context.Context, payer *wallet.Wallet, data []byte) (*Allocation, error)

	// SubmitSelfTransfer emits the zero-value, self-addressed linkage
	// transaction and returns its signature.
	SubmitSelfTransfer(ctx context.Context, payer *wallet.Wallet) (string, error)

	// MinimumBalanceForRentExemption returns the lamports needed to make
	// an allocation of the given size rent-exempt.
	MinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error)

	// Balance returns the lamport balance of an address.
	Balance(ctx context.Context, address string) (uint64, error)
}

// RPCError is an error returned by the node itself, as opposed to a
// transport failure. Node errors are never transient.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a non-2xx gateway response without a JSON-RPC body.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}
