/*

The swap executor submits slippage-bounded swaps against a resolved pool,
waits for one confirmation, and reconciles the outcome from the transaction's
emitted event, never from pre-transaction estimates. It is stateless per call:
pre-swap balance snapshots are the caller's job.

*/

package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/pool"
	"github.com/ampere-labs/poolbot/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNoLiquidity   = errors.New("no pool with liquidity exists for pair")
	ErrInvalidIntent = errors.New("swap intent is invalid")
)

// SwapRejectedError means the chain rejected the swap (simulation or on-chain
// revert). Retrying without changing the intent is pointless; the revert
// reason is preserved verbatim for the caller.
type SwapRejectedError struct {
	Reason string
}

func (e *SwapRejectedError) Error() string {
	return "swap rejected: " + e.Reason
}

var execLogger = logger.GetForComponent("swap_executor")

const bpsDenominator = 10000

// Executor performs swaps for a signing wallet.
type Executor struct {
	client  chain.Client
	locator *pool.Locator
}

// NewExecutor creates a swap executor.
func NewExecutor(client chain.Client, locator *pool.Locator) (*Executor, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	if locator == nil {
		return nil, errors.New("pool locator is required")
	}
	return &Executor{client: client, locator: locator}, nil
}

// AmountOutMin applies a slippage tolerance in basis points to an input amount
// using integer arithmetic only. No floating point touches on-chain amounts.
func AmountOutMin(amountIn *big.Int, slippageBps uint32) *big.Int {
	out := new(big.Int).Mul(amountIn, big.NewInt(bpsDenominator-int64(slippageBps)))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// Swap resolves the pool for the intent's pair, submits the swap signed with
// the provided material, awaits one confirmation, and reconciles balances.
// Pool creation is never an implicit side effect: a pair without a pool fails
// with ErrNoLiquidity before any transaction is issued.
func (e *Executor) Swap(ctx context.Context, signer *chain.TxSigner, intent types.SwapIntent) (*types.SwapResult, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, chain.ErrSignerRequired
	}

	handle, err := e.locator.FindPool(ctx, intent.FromToken, intent.ToToken)
	if err != nil {
		if errors.Is(err, pool.ErrPoolNotFound) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoLiquidity, intent.FromToken.Hex(), intent.ToToken.Hex())
		}
		return nil, err
	}

	amountOutMin := AmountOutMin(intent.AmountIn, intent.SlippageBps)

	execLogger.Info().
		Str("pool", handle.Address.Hex()).
		Uint32("feeTier", handle.FeeTier).
		Str("amountIn", intent.AmountIn.String()).
		Str("amountOutMin", amountOutMin.String()).
		Str("wallet", signer.Address().Hex()).
		Msg("Submitting swap")

	result := &types.SwapResult{
		AmountIn:     new(big.Int).Set(intent.AmountIn),
		AmountOutMin: amountOutMin,
	}

	txHash, err := e.client.Send(ctx, handle.Address, "swap",
		[]interface{}{intent.FromToken, intent.ToToken, intent.AmountIn, amountOutMin, signer.Address()},
		signer, nil)
	if err != nil {
		if re, ok := chain.IsRevert(err); ok {
			rejected := &SwapRejectedError{Reason: re.Reason}
			result.Err = rejected.Error()
			return result, rejected
		}
		return nil, err
	}
	result.TxHash = txHash.Hex()

	receipt, err := e.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != 1 {
		rejected := &SwapRejectedError{Reason: "transaction reverted on-chain"}
		result.Err = rejected.Error()
		return result, rejected
	}

	// The realized amounts come from the emitted event only. Estimates made
	// before submission are not safe to report or reconcile against.
	event := findSwapped(receipt, handle.Address, intent.FromToken)
	if event == nil {
		rejected := &SwapRejectedError{Reason: "confirmed receipt carries no swap event"}
		result.Err = rejected.Error()
		return result, rejected
	}
	result.AmountIn = event.AmountIn
	result.AmountOut = event.AmountOut

	result.BalanceFrom, result.BalanceTo, err = e.walletBalances(ctx, signer.Address(), intent.FromToken, intent.ToToken)
	if err != nil {
		return nil, err
	}

	result.Success = true

	execLogger.Info().
		Str("txHash", result.TxHash).
		Str("amountIn", result.AmountIn.String()).
		Str("amountOut", result.AmountOut.String()).
		Msg("Swap confirmed")

	return result, nil
}

// walletBalances re-reads the wallet's ERC-20 balances for both tokens after
// confirmation. "Before" snapshots belong to the caller.
func (e *Executor) walletBalances(ctx context.Context, wallet, fromToken, toToken common.Address) (*big.Int, *big.Int, error) {
	from, err := e.tokenBalance(ctx, fromToken, wallet)
	if err != nil {
		return nil, nil, err
	}
	to, err := e.tokenBalance(ctx, toToken, wallet)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (e *Executor) tokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := e.client.Read(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("balanceOf returned %d values", len(out))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("balanceOf result is not an integer")
	}
	return balance, nil
}

// findSwapped locates the pool's Swapped event in the receipt.
func findSwapped(receipt *chain.Receipt, poolAddr, tokenIn common.Address) *chain.SwappedEvent {
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != poolAddr {
			continue
		}
		ev, ok := chain.ParseSwapped(lg)
		if !ok {
			continue
		}
		if ev.TokenIn == tokenIn {
			return ev
		}
	}
	return nil
}

func validateIntent(intent types.SwapIntent) error {
	if intent.AmountIn == nil || intent.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amountIn must be positive", ErrInvalidIntent)
	}
	if intent.SlippageBps >= bpsDenominator {
		return fmt.Errorf("%w: slippage %d bps leaves no output floor", ErrInvalidIntent, intent.SlippageBps)
	}
	if intent.FromToken == intent.ToToken {
		return fmt.Errorf("%w: from and to tokens are identical", ErrInvalidIntent)
	}
	if intent.FromToken == (common.Address{}) || intent.ToToken == (common.Address{}) {
		return fmt.Errorf("%w: token address is zero", ErrInvalidIntent)
	}
	return nil
}
