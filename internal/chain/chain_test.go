package chain

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestNewTxSignerDerivesAddress(t *testing.T) {
	// Well-known test vector.
	signer, err := NewTxSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	require.Equal(t, "0x96216849c49358B10257cb55b28eA603c874b05E", signer.Address().Hex())

	// 0x prefix and surrounding whitespace are tolerated.
	prefixed, err := NewTxSigner(" 0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318 ")
	require.NoError(t, err)
	require.Equal(t, signer.Address(), prefixed.Address())
}

func TestNewTxSignerRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "zzzz", "abc", strings.Repeat("ff", 31)} {
		_, err := NewTxSigner(in)
		require.ErrorIs(t, err, ErrInvalidPrivateKey, "input %q", in)
	}
}

func TestTxSignerStringNeverLeaksKey(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	signer, err := NewTxSigner(keyHex)
	require.NoError(t, err)
	require.NotContains(t, signer.String(), keyHex)
	require.Equal(t, signer.Address().Hex(), signer.String())
}

func TestClassifyRPCError(t *testing.T) {
	re, ok := IsRevert(classifyRPCError(errors.New("execution reverted: INSUFFICIENT_LIQUIDITY")))
	require.True(t, ok)
	require.Equal(t, "INSUFFICIENT_LIQUIDITY", re.Reason)

	re, ok = IsRevert(classifyRPCError(errors.New("execution reverted")))
	require.True(t, ok)
	require.Equal(t, "", re.Reason)

	err := classifyRPCError(errors.New("dial tcp 127.0.0.1:8545: connection refused"))
	require.ErrorIs(t, err, ErrUnavailable)
	_, ok = IsRevert(err)
	require.False(t, ok)
}

func TestParseSwapped(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenIn := common.HexToAddress("0x2222222222222222222222222222222222222222")
	amountIn := big.NewInt(1_000_000)
	amountOut := big.NewInt(995_000)

	data := make([]byte, 64)
	amountIn.FillBytes(data[:32])
	amountOut.FillBytes(data[32:])

	lg := &gethtypes.Log{
		Topics: []common.Hash{
			SwappedTopic,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(tokenIn.Bytes()),
		},
		Data: data,
	}

	ev, ok := ParseSwapped(lg)
	require.True(t, ok)
	require.Equal(t, sender, ev.Sender)
	require.Equal(t, tokenIn, ev.TokenIn)
	require.Zero(t, ev.AmountIn.Cmp(amountIn))
	require.Zero(t, ev.AmountOut.Cmp(amountOut))
}

func TestParseSwappedRejectsForeignLogs(t *testing.T) {
	transfer := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	lg := &gethtypes.Log{
		Topics: []common.Hash{transfer, {}, {}},
		Data:   make([]byte, 64),
	}
	_, ok := ParseSwapped(lg)
	require.False(t, ok)

	_, ok = ParseSwapped(nil)
	require.False(t, ok)

	short := &gethtypes.Log{Topics: []common.Hash{SwappedTopic, {}, {}}, Data: make([]byte, 32)}
	_, ok = ParseSwapped(short)
	require.False(t, ok)
}

func TestParseABIsHasFullSurface(t *testing.T) {
	abis, err := parseABIs()
	require.NoError(t, err)

	for _, method := range []string{
		"getPool", "createPool",
		"initialize", "initialized", "getReserves", "swap", "addLiquidity", "removeLiquidity",
		"balanceOf", "approve",
	} {
		_, err := abis.lookup(method)
		require.NoError(t, err, "method %s", method)
	}

	_, err = abis.lookup("mintBackdoor")
	require.ErrorIs(t, err, ErrUnknownMethod)
}
