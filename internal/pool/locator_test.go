package pool

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Initialize("error")
	os.Exit(m.Run())
}

var (
	tokenA  = common.HexToAddress("0xAAAAAAAAAAAaAaaAAAaaAAAAaaaAAaAaaaAaaAa1")
	tokenB  = common.HexToAddress("0xBbBBBBBbbbBBbBbBBbbBbBBbbBbbBbbbBbbBbBb2")
	factory = common.HexToAddress("0xFAC7000000000000000000000000000000000001")
)

// fakeClient is a scripted chain.Client for locator tests. It models the
// factory's getPool/createPool surface over an in-memory pool registry.
type fakeClient struct {
	pools       map[string]common.Address // "token0:token1:tier" -> pool
	initialized map[common.Address]bool
	reserves    map[common.Address][2]*big.Int

	readErr error
	sendErr error

	receiptStatus   uint64
	createdPoolAddr common.Address
	registerOnSend  bool // factory records the pool when createPool is mined

	reads []string
	sends []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pools:           make(map[string]common.Address),
		initialized:     make(map[common.Address]bool),
		reserves:        make(map[common.Address][2]*big.Int),
		receiptStatus:   1,
		createdPoolAddr: common.HexToAddress("0x9000000000000000000000000000000000000009"),
		registerOnSend:  true,
	}
}

func poolKey(t0, t1 common.Address, tier *big.Int) string {
	return fmt.Sprintf("%s:%s:%s", t0.Hex(), t1.Hex(), tier.String())
}

func (f *fakeClient) setPool(t0, t1 common.Address, tier uint32, addr common.Address) {
	f.pools[poolKey(t0, t1, big.NewInt(int64(tier)))] = addr
}

func (f *fakeClient) Read(_ context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	f.reads = append(f.reads, method)
	if f.readErr != nil {
		return nil, f.readErr
	}
	switch method {
	case "getPool":
		addr := f.pools[poolKey(args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))]
		return []interface{}{addr}, nil
	case "initialized":
		return []interface{}{f.initialized[contract]}, nil
	case "getReserves":
		r := f.reserves[contract]
		if r[0] == nil {
			r = [2]*big.Int{big.NewInt(0), big.NewInt(0)}
		}
		return []interface{}{r[0], r[1]}, nil
	}
	return nil, fmt.Errorf("unexpected read %s", method)
}

func (f *fakeClient) Send(_ context.Context, contract common.Address, method string, args []interface{}, _ *chain.TxSigner, _ *big.Int) (common.Hash, error) {
	f.sends = append(f.sends, method)
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	if method == "createPool" && f.registerOnSend {
		f.pools[poolKey(args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))] = f.createdPoolAddr
	}
	if method == "initialize" {
		f.initialized[contract] = true
	}
	return common.HexToHash("0x1234"), nil
}

func (f *fakeClient) WaitForReceipt(_ context.Context, txHash common.Hash) (*chain.Receipt, error) {
	return &chain.Receipt{TxHash: txHash, Status: f.receiptStatus}, nil
}

func (f *fakeClient) GetBalance(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func testLocator(t *testing.T, client chain.Client) *Locator {
	t.Helper()
	loc, err := NewLocator(client, factory, []uint32{100, 500, 3000, 10000})
	require.NoError(t, err)
	return loc
}

func TestNormalizePair(t *testing.T) {
	t0, t1, err := NormalizePair(tokenB, tokenA)
	require.NoError(t, err)
	require.Equal(t, tokenA, t0)
	require.Equal(t, tokenB, t1)

	// Already ordered input is untouched.
	t0, t1, err = NormalizePair(tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, tokenA, t0)
	require.Equal(t, tokenB, t1)

	_, _, err = NormalizePair(tokenA, tokenA)
	require.ErrorIs(t, err, ErrIdenticalTokens)
}

func TestFindPoolPairSymmetry(t *testing.T) {
	client := newFakeClient()
	poolAddr := common.HexToAddress("0x7000000000000000000000000000000000000007")
	client.setPool(tokenA, tokenB, 500, poolAddr)

	loc := testLocator(t, client)
	ctx := context.Background()

	ab, err := loc.FindPool(ctx, tokenA, tokenB)
	require.NoError(t, err)
	ba, err := loc.FindPool(ctx, tokenB, tokenA)
	require.NoError(t, err)

	require.Equal(t, ab, ba)
	require.Equal(t, poolAddr, ab.Address)
	require.Equal(t, uint32(500), ab.FeeTier)
	require.Equal(t, tokenA, ab.Token0)
	require.Equal(t, tokenB, ab.Token1)
}

func TestFindPoolFeeTierPriority(t *testing.T) {
	client := newFakeClient()
	lowTier := common.HexToAddress("0x0000000000000000000000000000000000000500")
	highTier := common.HexToAddress("0x0000000000000000000000000000000000003000")
	client.setPool(tokenA, tokenB, 500, lowTier)
	client.setPool(tokenA, tokenB, 3000, highTier)

	loc := testLocator(t, client)

	handle, err := loc.FindPool(context.Background(), tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, uint32(500), handle.FeeTier)
	require.Equal(t, lowTier, handle.Address)
}

func TestFindPoolExhaustsAllTiers(t *testing.T) {
	client := newFakeClient()
	loc := testLocator(t, client)

	_, err := loc.FindPool(context.Background(), tokenA, tokenB)
	require.ErrorIs(t, err, ErrPoolNotFound)
	require.Len(t, client.reads, 4) // one getPool per configured tier
}

func TestFindPoolSurfacesChainUnavailable(t *testing.T) {
	client := newFakeClient()
	client.readErr = fmt.Errorf("%w: connection refused", chain.ErrUnavailable)

	loc := testLocator(t, client)

	_, err := loc.FindPool(context.Background(), tokenA, tokenB)
	require.ErrorIs(t, err, chain.ErrUnavailable)
	require.Len(t, client.reads, 1) // no blind probing past a transport failure
}

func TestEnsurePoolIdempotent(t *testing.T) {
	client := newFakeClient()
	loc := testLocator(t, client)
	ctx := context.Background()

	first, err := loc.EnsurePool(ctx, tokenA, tokenB, 3000, nil)
	require.NoError(t, err)
	require.Equal(t, client.createdPoolAddr, first.Address)

	second, err := loc.EnsurePool(ctx, tokenA, tokenB, 3000, nil)
	require.NoError(t, err)
	require.Equal(t, first.Address, second.Address)

	// At most one creation transaction across both calls.
	require.Equal(t, []string{"createPool"}, client.sends)
}

func TestEnsurePoolUsesFactoryRecordedAddress(t *testing.T) {
	client := newFakeClient()
	client.createdPoolAddr = common.HexToAddress("0xDEAD00000000000000000000000000000000BEEF")

	loc := testLocator(t, client)

	handle, err := loc.EnsurePool(context.Background(), tokenA, tokenB, 100, nil)
	require.NoError(t, err)
	require.Equal(t, client.createdPoolAddr, handle.Address)
}

func TestEnsurePoolFailsWhenFactoryDoesNotRecord(t *testing.T) {
	client := newFakeClient()
	client.registerOnSend = false // creation mined but factory shows no pool

	loc := testLocator(t, client)

	_, err := loc.EnsurePool(context.Background(), tokenA, tokenB, 100, nil)
	require.ErrorIs(t, err, ErrCreationFailed)
}

func TestEnsureInitialized(t *testing.T) {
	client := newFakeClient()
	poolAddr := common.HexToAddress("0x7000000000000000000000000000000000000007")
	client.setPool(tokenA, tokenB, 500, poolAddr)

	loc := testLocator(t, client)
	ctx := context.Background()

	handle, err := loc.FindPool(ctx, tokenA, tokenB)
	require.NoError(t, err)

	require.NoError(t, loc.EnsureInitialized(ctx, handle, big.NewInt(1), nil))
	require.Equal(t, []string{"initialize"}, client.sends)

	// Already initialized: no further transaction.
	require.NoError(t, loc.EnsureInitialized(ctx, handle, big.NewInt(1), nil))
	require.Equal(t, []string{"initialize"}, client.sends)
}

func TestEnsureInitializedRevertIsNonFatal(t *testing.T) {
	client := newFakeClient()
	poolAddr := common.HexToAddress("0x7000000000000000000000000000000000000007")
	client.setPool(tokenA, tokenB, 500, poolAddr)
	client.sendErr = &chain.RevertError{Reason: "ALREADY_INITIALIZED"}

	loc := testLocator(t, client)
	ctx := context.Background()

	handle, err := loc.FindPool(ctx, tokenA, tokenB)
	require.NoError(t, err)

	// A racing initializer is tolerated.
	require.NoError(t, loc.EnsureInitialized(ctx, handle, big.NewInt(1), nil))
}

func TestReserves(t *testing.T) {
	client := newFakeClient()
	poolAddr := common.HexToAddress("0x7000000000000000000000000000000000000007")
	client.setPool(tokenA, tokenB, 500, poolAddr)
	client.reserves[poolAddr] = [2]*big.Int{big.NewInt(12345), big.NewInt(67890)}

	loc := testLocator(t, client)
	ctx := context.Background()

	handle, err := loc.FindPool(ctx, tokenA, tokenB)
	require.NoError(t, err)

	r0, r1, err := loc.Reserves(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, int64(12345), r0.Int64())
	require.Equal(t, int64(67890), r1.Int64())
}
