package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnavailable     = errors.New("chain unavailable")
	ErrUnknownMethod   = errors.New("method is not part of the configured contract surface")
	ErrReceiptTimeout  = errors.New("timed out waiting for transaction receipt")
	ErrSignerRequired  = errors.New("transaction signer is required")
	ErrInvalidArgument = errors.New("contract call argument is invalid")
)

// RevertError is a simulation or execution revert. The chain rejected the
// transaction; it is not retryable without changing the request. The revert
// reason is preserved verbatim for diagnosis.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// IsRevert reports whether err is (or wraps) a RevertError and returns it.
func IsRevert(err error) (*RevertError, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Receipt is the confirmation record of a mined transaction.
type Receipt struct {
	TxHash common.Hash
	Status uint64 // 1 = success, 0 = reverted on-chain
	Logs   []*gethtypes.Log
}

// Client is the narrow chain interface the core components depend on. The live
// implementation is EVMClient; tests substitute fakes.
type Client interface {
	// Read performs a view call against a contract and returns the unpacked
	// outputs. Transient RPC failures surface as ErrUnavailable.
	Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error)

	// Send packs, signs, and submits a state-changing contract call. Reverts
	// detected during gas simulation surface as *RevertError before anything
	// is broadcast.
	Send(ctx context.Context, contract common.Address, method string, args []interface{}, signer *TxSigner, value *big.Int) (common.Hash, error)

	// WaitForReceipt blocks until the transaction is mined or ctx is done.
	// Abandoning the wait does not retract the transaction.
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)

	// GetBalance returns the native balance of an address.
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// ValidateAddress canonicalizes a hex address string, rejecting malformed input
// at the boundary.
func ValidateAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q is not a valid address", ErrInvalidArgument, raw)
	}
	return common.HexToAddress(raw), nil
}
