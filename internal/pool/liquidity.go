package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/types"
)

var (
	ErrInvalidLiquidityAmount = errors.New("liquidity amount is invalid")
	ErrLiquidityTxFailed      = errors.New("liquidity transaction failed")
)

var liquidityLogger = logger.GetForComponent("liquidity_manager")

// LiquidityManager submits addLiquidity/removeLiquidity transactions against a
// resolved pool and waits for confirmation. Like the executor, it reports only
// what the confirmed chain state says.
type LiquidityManager struct {
	client chain.Client
}

// NewLiquidityManager creates a liquidity manager.
func NewLiquidityManager(client chain.Client) (*LiquidityManager, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	return &LiquidityManager{client: client}, nil
}

// AddLiquidity deposits amounts of token0 and token1 into the pool.
func (m *LiquidityManager) AddLiquidity(ctx context.Context, handle *types.PoolHandle, amount0, amount1 *big.Int, signer *chain.TxSigner) (string, error) {
	if amount0 == nil || amount1 == nil || (amount0.Sign() <= 0 && amount1.Sign() <= 0) {
		return "", ErrInvalidLiquidityAmount
	}

	txHash, err := m.client.Send(ctx, handle.Address, "addLiquidity",
		[]interface{}{amount0, amount1}, signer, nil)
	if err != nil {
		return "", err
	}

	receipt, err := m.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		return "", err
	}
	if receipt.Status != 1 {
		return "", fmt.Errorf("%w: addLiquidity tx %s reverted on-chain", ErrLiquidityTxFailed, txHash.Hex())
	}

	liquidityLogger.Info().
		Str("pool", handle.Address.Hex()).
		Str("amount0", amount0.String()).
		Str("amount1", amount1.String()).
		Str("txHash", txHash.Hex()).
		Msg("Liquidity added")

	return txHash.Hex(), nil
}

// RemoveLiquidity withdraws a liquidity share from the pool.
func (m *LiquidityManager) RemoveLiquidity(ctx context.Context, handle *types.PoolHandle, liquidity *big.Int, signer *chain.TxSigner) (string, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return "", ErrInvalidLiquidityAmount
	}

	txHash, err := m.client.Send(ctx, handle.Address, "removeLiquidity",
		[]interface{}{liquidity}, signer, nil)
	if err != nil {
		return "", err
	}

	receipt, err := m.client.WaitForReceipt(ctx, txHash)
	if err != nil {
		return "", err
	}
	if receipt.Status != 1 {
		return "", fmt.Errorf("%w: removeLiquidity tx %s reverted on-chain", ErrLiquidityTxFailed, txHash.Hex())
	}

	liquidityLogger.Info().
		Str("pool", handle.Address.Hex()).
		Str("liquidity", liquidity.String()).
		Str("txHash", txHash.Hex()).
		Msg("Liquidity removed")

	return txHash.Hex(), nil
}
