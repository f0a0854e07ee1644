/*

Swap request and result types. A SwapIntent is ephemeral, constructed per request
and never persisted. A SwapResult is returned to the caller; the core does not
persist it (the bot layer logs receipts for the dashboard).

*/

package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type SwapIntent struct {
	FromToken   common.Address `json:"from_token"`
	ToToken     common.Address `json:"to_token"`
	AmountIn    *big.Int       `json:"amount_in"`
	SlippageBps uint32         `json:"slippage_bps"`
}

type SwapResult struct {
	Success      bool     `json:"success"`
	TxHash       string   `json:"tx_hash"`
	AmountIn     *big.Int `json:"amount_in"`
	AmountOutMin *big.Int `json:"amount_out_min"`
	AmountOut    *big.Int `json:"amount_out"` // realized amount from the Swapped event, nil on failure
	BalanceFrom  *big.Int `json:"balance_from"` // post-confirmation balance of the input token
	BalanceTo    *big.Int `json:"balance_to"`   // post-confirmation balance of the output token
	Err          string   `json:"error,omitempty"`
}

// SwapReceipt is the persisted, caller-side record of a completed swap attempt.
// Amounts are stored as decimal strings to avoid numeric truncation in the DB.
type SwapReceipt struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	TxHash       string    `json:"tx_hash"`
	Success      bool      `json:"success"`
	AmountIn     string    `json:"amount_in"`
	AmountOutMin string    `json:"amount_out_min"`
	AmountOut    string    `json:"amount_out"`
	ErrorMsg     string    `json:"error_msg,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
