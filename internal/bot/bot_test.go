package bot

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/swap"
	"github.com/ampere-labs/poolbot/internal/types"
	"github.com/ampere-labs/poolbot/internal/wallet"
)

func TestMain(m *testing.M) {
	logger.Initialize("error")
	os.Exit(m.Run())
}

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeWallets struct {
	mu       sync.Mutex
	records  map[string]*types.WalletRecord
	creates  int
	dupUsers map[string]bool
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{records: map[string]*types.WalletRecord{}, dupUsers: map[string]bool{}}
}

func (f *fakeWallets) GetWallet(_ context.Context, userID string) (*types.WalletRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dupUsers[userID] {
		return nil, wallet.ErrDuplicateWallets
	}
	record, ok := f.records[userID]
	if !ok {
		return nil, wallet.ErrWalletNotFound
	}
	return record, nil
}

func (f *fakeWallets) CreateWallet(_ context.Context, userID string) (*types.WalletRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	record := &types.WalletRecord{ID: uuid.NewString(), UserID: userID}
	f.records[userID] = record
	return record, nil
}

func (f *fakeWallets) Reconcile(_ context.Context, userID string) (*types.WalletRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dupUsers[userID] = false
	record := &types.WalletRecord{ID: uuid.NewString(), UserID: userID}
	f.records[userID] = record
	return record, nil
}

func (f *fakeWallets) GetSigningMaterial(context.Context, string) (*chain.TxSigner, error) {
	return chain.NewTxSigner(testKeyHex)
}

type fakeSwapper struct {
	mu       sync.Mutex
	calls    int
	inFlight atomic.Int32
	overlap  atomic.Bool
	// errs[i] is returned on call i; past the end, the swap succeeds.
	errs       []error
	results    []*types.SwapResult
	lastIntent types.SwapIntent
}

func (f *fakeSwapper) Swap(_ context.Context, _ *chain.TxSigner, intent types.SwapIntent) (*types.SwapResult, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	call := f.calls
	f.calls++
	f.lastIntent = intent
	f.mu.Unlock()

	if call < len(f.errs) && f.errs[call] != nil {
		var result *types.SwapResult
		if call < len(f.results) {
			result = f.results[call]
		}
		return result, f.errs[call]
	}
	return &types.SwapResult{
		Success:   true,
		TxHash:    "0xabc",
		AmountIn:  new(big.Int).Set(intent.AmountIn),
		AmountOut: big.NewInt(997_000),
	}, nil
}

type fakePools struct {
	ensureCalls int
	initPrices  []*big.Int
	findErr     error
}

func (f *fakePools) FindPool(context.Context, common.Address, common.Address) (*types.PoolHandle, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return &types.PoolHandle{Address: common.HexToAddress("0x77"), FeeTier: 500}, nil
}

func (f *fakePools) EnsurePool(_ context.Context, _, _ common.Address, tier uint32, _ *chain.TxSigner) (*types.PoolHandle, error) {
	f.ensureCalls++
	return &types.PoolHandle{Address: common.HexToAddress("0x77"), FeeTier: tier}, nil
}

func (f *fakePools) EnsureInitialized(_ context.Context, _ *types.PoolHandle, sqrtPriceX96 *big.Int, _ *chain.TxSigner) error {
	f.initPrices = append(f.initPrices, sqrtPriceX96)
	return nil
}

type fakeLiquidity struct {
	addCalls, removeCalls int
}

func (f *fakeLiquidity) AddLiquidity(context.Context, *types.PoolHandle, *big.Int, *big.Int, *chain.TxSigner) (string, error) {
	f.addCalls++
	return "0xadd", nil
}

func (f *fakeLiquidity) RemoveLiquidity(context.Context, *types.PoolHandle, *big.Int, *chain.TxSigner) (string, error) {
	f.removeCalls++
	return "0xdel", nil
}

type fakeReceipts struct {
	mu    sync.Mutex
	saved []types.SwapResult
	err   error
}

func (f *fakeReceipts) SaveSwapReceipt(_ context.Context, _ string, result types.SwapResult) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, result)
	return int64(len(f.saved)), nil
}

type deps struct {
	wallets   *fakeWallets
	swapper   *fakeSwapper
	pools     *fakePools
	liquidity *fakeLiquidity
	receipts  *fakeReceipts
}

func newBot(t *testing.T, d *deps) *Bot {
	t.Helper()
	b, err := New(Config{
		Wallets:       d.wallets,
		Swapper:       d.swapper,
		Pools:         d.pools,
		Liquidity:     d.liquidity,
		Receipts:      d.receipts,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
		SqrtPriceX96:  big.NewInt(1 << 40),
	})
	require.NoError(t, err)
	return b
}

func newDeps() *deps {
	return &deps{
		wallets:   newFakeWallets(),
		swapper:   &fakeSwapper{},
		pools:     &fakePools{},
		liquidity: &fakeLiquidity{},
		receipts:  &fakeReceipts{},
	}
}

func intent() types.SwapIntent {
	return types.SwapIntent{
		FromToken:   tokenA,
		ToToken:     tokenB,
		AmountIn:    big.NewInt(1_000_000),
		SlippageBps: 50,
	}
}

func TestExecuteSwapOnboardsFirstTimeUser(t *testing.T) {
	d := newDeps()
	b := newBot(t, d)

	result, err := b.ExecuteSwap(context.Background(), "alice", intent())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, d.wallets.creates)

	// Second swap reuses the wallet.
	_, err = b.ExecuteSwap(context.Background(), "alice", intent())
	require.NoError(t, err)
	require.Equal(t, 1, d.wallets.creates)
}

func TestExecuteSwapAppliesDefaultSlippage(t *testing.T) {
	d := newDeps()
	b, err := New(Config{
		Wallets:            d.wallets,
		Swapper:            d.swapper,
		Pools:              d.pools,
		Liquidity:          d.liquidity,
		Receipts:           d.receipts,
		SqrtPriceX96:       big.NewInt(1),
		DefaultSlippageBps: 75,
	})
	require.NoError(t, err)

	request := intent()
	request.SlippageBps = 0
	_, err = b.ExecuteSwap(context.Background(), "alice", request)
	require.NoError(t, err)
	require.Equal(t, uint32(75), d.swapper.lastIntent.SlippageBps)

	// An explicit tolerance is never overridden.
	request.SlippageBps = 10
	_, err = b.ExecuteSwap(context.Background(), "alice", request)
	require.NoError(t, err)
	require.Equal(t, uint32(10), d.swapper.lastIntent.SlippageBps)
}

func TestExecuteSwapReconcilesDuplicates(t *testing.T) {
	d := newDeps()
	d.wallets.dupUsers["bob"] = true
	b := newBot(t, d)

	_, err := b.ExecuteSwap(context.Background(), "bob", intent())
	require.NoError(t, err)
	require.Zero(t, d.wallets.creates)
}

func TestExecuteSwapRetriesOnlyInfrastructureFailures(t *testing.T) {
	d := newDeps()
	d.swapper.errs = []error{
		fmt.Errorf("%w: connection refused", chain.ErrUnavailable),
		fmt.Errorf("%w: connection refused", chain.ErrUnavailable),
	}
	b := newBot(t, d)

	result, err := b.ExecuteSwap(context.Background(), "alice", intent())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, d.swapper.calls)
}

func TestExecuteSwapExhaustsRetryBudget(t *testing.T) {
	d := newDeps()
	outage := fmt.Errorf("%w: connection refused", chain.ErrUnavailable)
	d.swapper.errs = []error{outage, outage, outage}
	b := newBot(t, d)

	_, err := b.ExecuteSwap(context.Background(), "alice", intent())
	require.ErrorIs(t, err, chain.ErrUnavailable)
	require.Equal(t, 3, d.swapper.calls)
	require.Equal(t, int64(1), b.Stats().SwapsFailed)
}

func TestExecuteSwapNeverRetriesRejections(t *testing.T) {
	d := newDeps()
	rejection := &swap.SwapRejectedError{Reason: "INSUFFICIENT_LIQUIDITY"}
	d.swapper.errs = []error{rejection}
	d.swapper.results = []*types.SwapResult{{
		Success:  false,
		AmountIn: big.NewInt(1_000_000),
		Err:      rejection.Error(),
	}}
	b := newBot(t, d)

	_, err := b.ExecuteSwap(context.Background(), "alice", intent())
	require.ErrorIs(t, err, error(rejection))
	require.Equal(t, 1, d.swapper.calls)
	require.Equal(t, int64(1), b.Stats().SwapsRejected)

	// Rejected outcomes are still recorded.
	require.Len(t, d.receipts.saved, 1)
	require.False(t, d.receipts.saved[0].Success)
}

func TestExecuteSwapPersistsReceipt(t *testing.T) {
	d := newDeps()
	b := newBot(t, d)

	_, err := b.ExecuteSwap(context.Background(), "alice", intent())
	require.NoError(t, err)
	require.Len(t, d.receipts.saved, 1)
	require.True(t, d.receipts.saved[0].Success)
}

func TestReceiptFailureDoesNotFailSwap(t *testing.T) {
	d := newDeps()
	d.receipts.err = fmt.Errorf("db down")
	b := newBot(t, d)

	result, err := b.ExecuteSwap(context.Background(), "alice", intent())
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestSameUserOperationsAreSerialized(t *testing.T) {
	d := newDeps()
	b := newBot(t, d)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.ExecuteSwap(context.Background(), "alice", intent())
		}()
	}
	wg.Wait()

	require.False(t, d.swapper.overlap.Load(), "swaps for one user overlapped")
	require.Equal(t, 8, d.swapper.calls)
	require.Equal(t, 1, d.wallets.creates)
}

func TestProvisionPoolSeedsInitialPrice(t *testing.T) {
	d := newDeps()
	b := newBot(t, d)

	handle, err := b.ProvisionPool(context.Background(), "admin", tokenA, tokenB, 3000)
	require.NoError(t, err)
	require.Equal(t, uint32(3000), handle.FeeTier)
	require.Equal(t, 1, d.pools.ensureCalls)
	require.Len(t, d.pools.initPrices, 1)
	require.Equal(t, big.NewInt(1<<40), d.pools.initPrices[0])
	require.Equal(t, int64(1), b.Stats().PoolsCreated)
}

func TestLiquidityPassThrough(t *testing.T) {
	d := newDeps()
	b := newBot(t, d)

	_, err := b.OnboardUser(context.Background(), "alice")
	require.NoError(t, err)

	txHash, err := b.AddLiquidity(context.Background(), "alice", tokenA, tokenB, big.NewInt(10), big.NewInt(20))
	require.NoError(t, err)
	require.Equal(t, "0xadd", txHash)

	txHash, err = b.RemoveLiquidity(context.Background(), "alice", tokenA, tokenB, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, "0xdel", txHash)
}

func TestConfigValidation(t *testing.T) {
	d := newDeps()
	_, err := New(Config{
		Swapper:      d.swapper,
		Pools:        d.pools,
		Liquidity:    d.liquidity,
		SqrtPriceX96: big.NewInt(1),
	})
	require.Error(t, err)

	_, err = New(Config{
		Wallets:   d.wallets,
		Swapper:   d.swapper,
		Pools:     d.pools,
		Liquidity: d.liquidity,
	})
	require.Error(t, err)
}
