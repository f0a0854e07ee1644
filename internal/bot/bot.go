/*

The bot ties the custody and trading layers together. It owns the per-user
serialization guarantee: operations for the same user never interleave, while
different users proceed concurrently. It also owns the retry policy, which
applies only to infrastructure failures. A rejected swap is never retried.

*/

package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/swap"
	"github.com/ampere-labs/poolbot/internal/types"
	"github.com/ampere-labs/poolbot/internal/wallet"
)

// WalletProvider is the custody surface the bot needs.
type WalletProvider interface {
	GetWallet(ctx context.Context, userID string) (*types.WalletRecord, error)
	CreateWallet(ctx context.Context, userID string) (*types.WalletRecord, error)
	Reconcile(ctx context.Context, userID string) (*types.WalletRecord, error)
	GetSigningMaterial(ctx context.Context, userID string) (*chain.TxSigner, error)
}

// SwapService executes a single slippage-bounded swap.
type SwapService interface {
	Swap(ctx context.Context, signer *chain.TxSigner, intent types.SwapIntent) (*types.SwapResult, error)
}

// PoolService covers pool provisioning and lookup.
type PoolService interface {
	FindPool(ctx context.Context, tokenA, tokenB common.Address) (*types.PoolHandle, error)
	EnsurePool(ctx context.Context, tokenA, tokenB common.Address, tier uint32, signer *chain.TxSigner) (*types.PoolHandle, error)
	EnsureInitialized(ctx context.Context, handle *types.PoolHandle, sqrtPriceX96 *big.Int, signer *chain.TxSigner) error
}

// LiquidityService manages pool liquidity positions.
type LiquidityService interface {
	AddLiquidity(ctx context.Context, handle *types.PoolHandle, amount0, amount1 *big.Int, signer *chain.TxSigner) (string, error)
	RemoveLiquidity(ctx context.Context, handle *types.PoolHandle, liquidity *big.Int, signer *chain.TxSigner) (string, error)
}

// ReceiptSink persists swap outcomes. Persistence failures never fail the swap.
type ReceiptSink interface {
	SaveSwapReceipt(ctx context.Context, userID string, result types.SwapResult) (int64, error)
}

// Stats are cumulative since process start.
type Stats struct {
	SwapsExecuted int64 `json:"swapsExecuted"`
	SwapsRejected int64 `json:"swapsRejected"`
	SwapsFailed   int64 `json:"swapsFailed"`
	PoolsCreated  int64 `json:"poolsCreated"`
}

// Bot orchestrates custodial trading for many users.
type Bot struct {
	logger    zerolog.Logger
	wallets   WalletProvider
	swapper   SwapService
	pools     PoolService
	liquidity LiquidityService
	receipts  ReceiptSink

	retryAttempts      int
	retryBackoff       time.Duration
	sqrtPriceX96       *big.Int
	defaultSlippageBps uint32

	userLocks sync.Map // userID -> *sync.Mutex

	swapsExecuted atomic.Int64
	swapsRejected atomic.Int64
	swapsFailed   atomic.Int64
	poolsCreated  atomic.Int64
}

// Config holds the dependencies for creating a new Bot instance.
type Config struct {
	Wallets   WalletProvider
	Swapper   SwapService
	Pools     PoolService
	Liquidity LiquidityService
	Receipts  ReceiptSink

	// RetryAttempts is the total number of tries for operations that fail
	// with an infrastructure error. Values below 1 mean a single try.
	RetryAttempts int
	RetryBackoff  time.Duration

	// SqrtPriceX96 seeds freshly provisioned pools.
	SqrtPriceX96 *big.Int

	// DefaultSlippageBps applies when an intent leaves slippage unset.
	DefaultSlippageBps uint32
}

// New creates a Bot with dependency injection.
func New(cfg Config) (*Bot, error) {
	if err := validateBotConfig(cfg); err != nil {
		return nil, fmt.Errorf("bot configuration validation failed: %w", err)
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Bot{
		logger:             logger.GetForComponent("bot"),
		wallets:            cfg.Wallets,
		swapper:            cfg.Swapper,
		pools:              cfg.Pools,
		liquidity:          cfg.Liquidity,
		receipts:           cfg.Receipts,
		retryAttempts:      attempts,
		retryBackoff:       cfg.RetryBackoff,
		sqrtPriceX96:       cfg.SqrtPriceX96,
		defaultSlippageBps: cfg.DefaultSlippageBps,
	}, nil
}

func validateBotConfig(cfg Config) error {
	if cfg.Wallets == nil {
		return fmt.Errorf("wallet provider cannot be nil")
	}
	if cfg.Swapper == nil {
		return fmt.Errorf("swap service cannot be nil")
	}
	if cfg.Pools == nil {
		return fmt.Errorf("pool service cannot be nil")
	}
	if cfg.Liquidity == nil {
		return fmt.Errorf("liquidity service cannot be nil")
	}
	if cfg.SqrtPriceX96 == nil || cfg.SqrtPriceX96.Sign() <= 0 {
		return fmt.Errorf("initial sqrt price must be positive")
	}
	return nil
}

// lockUser serializes all operations for a single user.
func (b *Bot) lockUser(userID string) func() {
	mu, _ := b.userLocks.LoadOrStore(userID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

// ensureWallet returns the user's wallet, creating one on first contact and
// collapsing duplicates if a previous create raced.
func (b *Bot) ensureWallet(ctx context.Context, userID string) (*types.WalletRecord, error) {
	record, err := b.wallets.GetWallet(ctx, userID)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, wallet.ErrWalletNotFound):
		b.logger.Info().Str("userID", userID).Msg("Onboarding new user")
		return b.wallets.CreateWallet(ctx, userID)
	case errors.Is(err, wallet.ErrDuplicateWallets):
		b.logger.Warn().Str("userID", userID).Msg("Duplicate wallets detected, reconciling")
		return b.wallets.Reconcile(ctx, userID)
	default:
		return nil, err
	}
}

// OnboardUser provisions custody for a user ahead of their first trade.
func (b *Bot) OnboardUser(ctx context.Context, userID string) (*types.WalletRecord, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	unlock := b.lockUser(userID)
	defer unlock()
	return b.ensureWallet(ctx, userID)
}

// ExecuteSwap runs a swap on behalf of a user. Infrastructure failures are
// retried with backoff up to the configured attempt budget; rejections are
// final. The outcome is persisted whether the swap succeeded or was rejected.
func (b *Bot) ExecuteSwap(ctx context.Context, userID string, intent types.SwapIntent) (*types.SwapResult, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	if intent.SlippageBps == 0 {
		intent.SlippageBps = b.defaultSlippageBps
	}

	unlock := b.lockUser(userID)
	defer unlock()

	if _, err := b.ensureWallet(ctx, userID); err != nil {
		return nil, fmt.Errorf("wallet lookup for user %s: %w", userID, err)
	}

	signer, err := b.wallets.GetSigningMaterial(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("signing material for user %s: %w", userID, err)
	}

	var result *types.SwapResult
	err = b.withRetry(ctx, "swap", func() error {
		var swapErr error
		result, swapErr = b.swapper.Swap(ctx, signer, intent)
		return swapErr
	})

	if result != nil {
		b.persistReceipt(ctx, userID, result)
	}

	if err != nil {
		var rejected *swap.SwapRejectedError
		if errors.As(err, &rejected) {
			b.swapsRejected.Add(1)
		} else {
			b.swapsFailed.Add(1)
		}
		return result, err
	}

	b.swapsExecuted.Add(1)
	b.logger.Info().
		Str("userID", userID).
		Str("txHash", result.TxHash).
		Msg("Swap executed")
	return result, nil
}

// ProvisionPool is a privileged operation: it creates the pool for a pair at
// a specific fee tier if absent and seeds its initial price. Regular trading
// never creates pools implicitly.
func (b *Bot) ProvisionPool(ctx context.Context, userID string, tokenA, tokenB common.Address, tier uint32) (*types.PoolHandle, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	unlock := b.lockUser(userID)
	defer unlock()

	if _, err := b.ensureWallet(ctx, userID); err != nil {
		return nil, err
	}
	signer, err := b.wallets.GetSigningMaterial(ctx, userID)
	if err != nil {
		return nil, err
	}

	var handle *types.PoolHandle
	err = b.withRetry(ctx, "provision_pool", func() error {
		var ensureErr error
		handle, ensureErr = b.pools.EnsurePool(ctx, tokenA, tokenB, tier, signer)
		return ensureErr
	})
	if err != nil {
		return nil, err
	}

	if err := b.pools.EnsureInitialized(ctx, handle, b.sqrtPriceX96, signer); err != nil {
		return nil, err
	}

	b.poolsCreated.Add(1)
	b.logger.Info().
		Str("pool", handle.Address.Hex()).
		Uint32("feeTier", handle.FeeTier).
		Msg("Pool provisioned")
	return handle, nil
}

// AddLiquidity deposits into the pair's pool on behalf of a user.
func (b *Bot) AddLiquidity(ctx context.Context, userID string, tokenA, tokenB common.Address, amount0, amount1 *big.Int) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}

	unlock := b.lockUser(userID)
	defer unlock()

	signer, err := b.wallets.GetSigningMaterial(ctx, userID)
	if err != nil {
		return "", err
	}
	handle, err := b.pools.FindPool(ctx, tokenA, tokenB)
	if err != nil {
		return "", err
	}
	return b.liquidity.AddLiquidity(ctx, handle, amount0, amount1, signer)
}

// RemoveLiquidity withdraws a liquidity amount from the pair's pool.
func (b *Bot) RemoveLiquidity(ctx context.Context, userID string, tokenA, tokenB common.Address, amount *big.Int) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}

	unlock := b.lockUser(userID)
	defer unlock()

	signer, err := b.wallets.GetSigningMaterial(ctx, userID)
	if err != nil {
		return "", err
	}
	handle, err := b.pools.FindPool(ctx, tokenA, tokenB)
	if err != nil {
		return "", err
	}
	return b.liquidity.RemoveLiquidity(ctx, handle, amount, signer)
}

// Stats reports cumulative counters for the status endpoint.
func (b *Bot) Stats() Stats {
	return Stats{
		SwapsExecuted: b.swapsExecuted.Load(),
		SwapsRejected: b.swapsRejected.Load(),
		SwapsFailed:   b.swapsFailed.Load(),
		PoolsCreated:  b.poolsCreated.Load(),
	}
}

// withRetry runs op, retrying only when the failure is an infrastructure
// outage. Reverts, rejections, and every other error class return on the
// first attempt.
func (b *Bot) withRetry(ctx context.Context, name string, op func() error) error {
	var err error
	for attempt := 1; attempt <= b.retryAttempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, chain.ErrUnavailable) {
			return err
		}
		if attempt == b.retryAttempts {
			break
		}

		backoff := time.Duration(attempt) * b.retryBackoff
		b.logger.Warn().
			Err(err).
			Str("operation", name).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Chain unavailable, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, b.retryAttempts, err)
}

// persistReceipt records the swap outcome. A storage failure is logged and
// swallowed so bookkeeping never masks the trading result.
func (b *Bot) persistReceipt(ctx context.Context, userID string, result *types.SwapResult) {
	if b.receipts == nil {
		return
	}
	if _, err := b.receipts.SaveSwapReceipt(ctx, userID, *result); err != nil {
		b.logger.Error().Err(err).Str("userID", userID).Msg("Failed to persist swap receipt")
	}
}
