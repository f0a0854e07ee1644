/*

The pool locator resolves a token pair to a deployed pool across the configured
fee-tier enumeration, and creates/initializes pools on demand. It performs no
internal retries: transient RPC failures surface as chain.ErrUnavailable so the
caller applies its own backoff without risking duplicated creation transactions.

*/

package pool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrPoolNotFound     = errors.New("no pool exists for pair at any configured fee tier")
	ErrIdenticalTokens  = errors.New("token pair must consist of two distinct tokens")
	ErrCreationFailed   = errors.New("pool creation transaction failed")
	ErrUnexpectedResult = errors.New("contract returned an unexpected result shape")
)

var locatorLogger = logger.GetForComponent("pool_locator")

// Locator finds or creates pools through the factory contract.
type Locator struct {
	client   chain.Client
	factory  common.Address
	feeTiers []uint32
}

// NewLocator creates a pool locator. The fee-tier slice order is the probe
// order and the tie-break when a pair has pools at several tiers.
func NewLocator(client chain.Client, factory common.Address, feeTiers []uint32) (*Locator, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	if factory == (common.Address{}) {
		return nil, errors.New("factory address is required")
	}
	if len(feeTiers) == 0 {
		return nil, errors.New("fee tier enumeration is empty")
	}
	return &Locator{
		client:   client,
		factory:  factory,
		feeTiers: append([]uint32(nil), feeTiers...),
	}, nil
}

// FeeTiers returns the configured enumeration, in probe order.
func (l *Locator) FeeTiers() []uint32 {
	return append([]uint32(nil), l.feeTiers...)
}

// NormalizePair orders a token pair canonically: lexicographically smaller
// address first, so (A,B) and (B,A) resolve to the same pool identity.
func NormalizePair(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", ErrIdenticalTokens, tokenA.Hex())
	}
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return tokenA, tokenB, nil
}

// PairKey returns the canonical identity string for an unordered token pair.
func PairKey(tokenA, tokenB common.Address) (string, error) {
	t0, t1, err := NormalizePair(tokenA, tokenB)
	if err != nil {
		return "", err
	}
	return strings.ToLower(t0.Hex()) + ":" + strings.ToLower(t1.Hex()), nil
}

// FindPool probes the fee tiers in enumeration order and returns the first
// non-zero pool address. Returns ErrPoolNotFound only after exhausting every
// tier. The linear probe is deliberate: tiers are independent pools and the
// factory only exposes single-tier lookups, so tier order encodes priority.
func (l *Locator) FindPool(ctx context.Context, tokenA, tokenB common.Address) (*types.PoolHandle, error) {
	for _, tier := range l.feeTiers {
		handle, err := l.FindPoolAtTier(ctx, tokenA, tokenB, tier)
		if err == nil {
			return handle, nil
		}
		if errors.Is(err, ErrPoolNotFound) {
			continue
		}
		return nil, err
	}

	key, err := PairKey(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, key)
}

// FindPoolAtTier queries the factory for a pool at one specific tier.
func (l *Locator) FindPoolAtTier(ctx context.Context, tokenA, tokenB common.Address, tier uint32) (*types.PoolHandle, error) {
	t0, t1, err := NormalizePair(tokenA, tokenB)
	if err != nil {
		return nil, err
	}

	out, err := l.client.Read(ctx, l.factory, "getPool", t0, t1, big.NewInt(int64(tier)))
	if err != nil {
		return nil, err
	}
	addr, err := addressResult(out)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: tier %d", ErrPoolNotFound, tier)
	}

	key, _ := PairKey(t0, t1)
	return &types.PoolHandle{
		PairKey: key,
		FeeTier: tier,
		Address: addr,
		Token0:  t0,
		Token1:  t1,
	}, nil
}

// EnsurePool returns the pool at the given tier, creating it when absent. On
// creation it re-queries the factory for the deployed address: the authoritative
// address is whatever the factory records, never a client-side prediction. From
// the caller's perspective the operation is idempotent.
func (l *Locator) EnsurePool(ctx context.Context, tokenA, tokenB common.Address, tier uint32, signer *chain.TxSigner) (*types.PoolHandle, error) {
	handle, err := l.FindPoolAtTier(ctx, tokenA, tokenB, tier)
	if err == nil {
		return handle, nil
	}
	if !errors.Is(err, ErrPoolNotFound) {
		return nil, err
	}

	t0, t1, err := NormalizePair(tokenA, tokenB)
	if err != nil {
		return nil, err
	}

	locatorLogger.Info().
		Str("token0", t0.Hex()).
		Str("token1", t1.Hex()).
		Uint32("feeTier", tier).
		Msg("No pool at tier, submitting creation transaction")

	txHash, err := l.client.Send(ctx, l.factory, "createPool",
		[]interface{}{t0, t1, big.NewInt(int64(tier))}, signer, nil)
	if err != nil {
		return nil, err
	}

	receipt, err := l.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != 1 {
		return nil, fmt.Errorf("%w: tx %s reverted on-chain", ErrCreationFailed, txHash.Hex())
	}

	handle, err = l.FindPoolAtTier(ctx, t0, t1, tier)
	if err != nil {
		if errors.Is(err, ErrPoolNotFound) {
			return nil, fmt.Errorf("%w: factory does not record a pool after creation tx %s", ErrCreationFailed, txHash.Hex())
		}
		return nil, err
	}

	locatorLogger.Info().
		Str("pool", handle.Address.Hex()).
		Str("txHash", txHash.Hex()).
		Uint32("feeTier", tier).
		Msg("Pool created")

	return handle, nil
}

// EnsureInitialized initializes the pool at the supplied default price if it is
// not initialized yet. A revert here (e.g. a racing actor initialized first) is
// non-fatal and only logged: the pool is usable either way.
func (l *Locator) EnsureInitialized(ctx context.Context, handle *types.PoolHandle, sqrtPriceX96 *big.Int, signer *chain.TxSigner) error {
	out, err := l.client.Read(ctx, handle.Address, "initialized")
	if err != nil {
		return err
	}
	initialized, err := boolResult(out)
	if err != nil {
		return err
	}
	if initialized {
		return nil
	}

	txHash, err := l.client.Send(ctx, handle.Address, "initialize",
		[]interface{}{sqrtPriceX96}, signer, nil)
	if err != nil {
		if re, ok := chain.IsRevert(err); ok {
			locatorLogger.Warn().
				Str("pool", handle.Address.Hex()).
				Str("reason", re.Reason).
				Msg("Pool initialization reverted, continuing (pool already initialized or racing)")
			return nil
		}
		return err
	}

	receipt, err := l.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		return err
	}
	if receipt.Status != 1 {
		locatorLogger.Warn().
			Str("pool", handle.Address.Hex()).
			Str("txHash", txHash.Hex()).
			Msg("Pool initialization transaction reverted on-chain, continuing")
		return nil
	}

	locatorLogger.Info().
		Str("pool", handle.Address.Hex()).
		Str("txHash", txHash.Hex()).
		Msg("Pool initialized")

	return nil
}

// Reserves reads the pool's current reserves.
func (l *Locator) Reserves(ctx context.Context, handle *types.PoolHandle) (*big.Int, *big.Int, error) {
	out, err := l.client.Read(ctx, handle.Address, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("%w: getReserves returned %d values", ErrUnexpectedResult, len(out))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("%w: getReserves values are not integers", ErrUnexpectedResult)
	}
	return r0, r1, nil
}

func addressResult(out []interface{}) (common.Address, error) {
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("%w: expected 1 value, got %d", ErrUnexpectedResult, len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: value is not an address", ErrUnexpectedResult)
	}
	return addr, nil
}

func boolResult(out []interface{}) (bool, error) {
	if len(out) != 1 {
		return false, fmt.Errorf("%w: expected 1 value, got %d", ErrUnexpectedResult, len(out))
	}
	b, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: value is not a bool", ErrUnexpectedResult)
	}
	return b, nil
}
