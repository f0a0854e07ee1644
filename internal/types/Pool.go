/*

This is the pool handle type: a read-through cache of on-chain factory state for
one token pair at one fee tier. It is never authoritative; callers re-validate
before mutating operations when staleness matters.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

type PoolHandle struct {
	PairKey string         `json:"pair_key"` // canonical unordered pair identity
	FeeTier uint32         `json:"fee_tier"` // basis-points-equivalent fee level
	Address common.Address `json:"address"`  // deployed pool contract address
	Token0  common.Address `json:"token0"`   // lexicographically smaller token
	Token1  common.Address `json:"token1"`   // lexicographically larger token
}

// PoolReserves holds the result of a getReserves read.
type PoolReserves struct {
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}
