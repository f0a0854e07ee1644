package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ABI fragments for the deployed factory/pool suite. Contract design is out of
// scope here; these mirror the already-deployed surface.
const factoryABIJSON = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"},
			{"internalType": "uint24", "name": "fee", "type": "uint24"}
		],
		"name": "getPool",
		"outputs": [{"internalType": "address", "name": "pool", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"},
			{"internalType": "uint24", "name": "fee", "type": "uint24"}
		],
		"name": "createPool",
		"outputs": [{"internalType": "address", "name": "pool", "type": "address"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const poolABIJSON = `[
	{
		"inputs": [{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"}],
		"name": "initialize",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "initialized",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint256", "name": "reserve0", "type": "uint256"},
			{"internalType": "uint256", "name": "reserve1", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "tokenIn", "type": "address"},
			{"internalType": "address", "name": "tokenOut", "type": "address"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "amountOutMin", "type": "uint256"},
			{"internalType": "address", "name": "recipient", "type": "address"}
		],
		"name": "swap",
		"outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "amount0", "type": "uint256"},
			{"internalType": "uint256", "name": "amount1", "type": "uint256"}
		],
		"name": "addLiquidity",
		"outputs": [{"internalType": "uint256", "name": "liquidity", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "liquidity", "type": "uint256"}],
		"name": "removeLiquidity",
		"outputs": [
			{"internalType": "uint256", "name": "amount0", "type": "uint256"},
			{"internalType": "uint256", "name": "amount1", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "tokenIn", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "amountOut", "type": "uint256"}
		],
		"name": "Swapped",
		"type": "event"
	}
]`

const erc20ABIJSON = `[
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// SwappedTopic is topic0 of the pool's Swapped event.
var SwappedTopic = crypto.Keccak256Hash([]byte("Swapped(address,address,uint256,uint256)"))

// contractABIs parses the three fragments and builds a method-name index. The
// fragments share no method names, so lookup by name is unambiguous.
type contractABIs struct {
	factory abi.ABI
	pool    abi.ABI
	erc20   abi.ABI
	byName  map[string]*abi.ABI
}

func parseABIs() (*contractABIs, error) {
	factory, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	pool, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}

	c := &contractABIs{factory: factory, pool: pool, erc20: erc20, byName: map[string]*abi.ABI{}}
	for _, ab := range []*abi.ABI{&c.factory, &c.pool, &c.erc20} {
		for name := range ab.Methods {
			if _, dup := c.byName[name]; dup {
				return nil, fmt.Errorf("ambiguous method name across ABI fragments: %s", name)
			}
			c.byName[name] = ab
		}
	}
	return c, nil
}

func (c *contractABIs) lookup(method string) (*abi.ABI, error) {
	ab, ok := c.byName[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return ab, nil
}

// SwappedEvent is the decoded payload of a pool Swapped log.
type SwappedEvent struct {
	Sender    common.Address
	TokenIn   common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
}

// ParseSwapped decodes a Swapped log emitted by a pool contract. Returns false
// if the log is not a Swapped event.
func ParseSwapped(lg *gethtypes.Log) (*SwappedEvent, bool) {
	if lg == nil || len(lg.Topics) != 3 || lg.Topics[0] != SwappedTopic {
		return nil, false
	}
	if len(lg.Data) != 64 {
		return nil, false
	}
	return &SwappedEvent{
		Sender:    common.BytesToAddress(lg.Topics[1].Bytes()),
		TokenIn:   common.BytesToAddress(lg.Topics[2].Bytes()),
		AmountIn:  new(big.Int).SetBytes(lg.Data[:32]),
		AmountOut: new(big.Int).SetBytes(lg.Data[32:64]),
	}, true
}
