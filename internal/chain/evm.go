package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ampere-labs/poolbot/internal/logger"
)

var chainLogger = logger.GetForComponent("chain_client")

// EVMClient is the live Client implementation over a JSON-RPC endpoint. It owns
// the ABI fragments for the factory/pool/erc20 surface and performs nonce
// management, gas estimation, and EIP-155 signing on Send.
type EVMClient struct {
	eth          *ethclient.Client
	chainID      *big.Int
	abis         *contractABIs
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// EVMClientConfig holds the construction parameters for an EVMClient.
type EVMClientConfig struct {
	RPCURL         string
	ChainID        uint64
	PollInterval   time.Duration // receipt polling cadence
	ConfirmTimeout time.Duration // upper bound on the wait for one confirmation
}

// NewEVMClient dials the RPC endpoint and prepares the contract ABIs.
func NewEVMClient(cfg EVMClientConfig) (*EVMClient, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("RPC URL is required")
	}
	if cfg.ChainID == 0 {
		return nil, errors.New("chain ID is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}

	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, cfg.RPCURL, err)
	}

	chainLogger.Info().
		Str("endpoint", cfg.RPCURL).
		Uint64("chainId", cfg.ChainID).
		Msg("Chain client connected")

	return &EVMClient{
		eth:            eth,
		chainID:        new(big.Int).SetUint64(cfg.ChainID),
		abis:           abis,
		pollInterval:   cfg.PollInterval,
		confirmTimeout: cfg.ConfirmTimeout,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	c.eth.Close()
}

// Read performs an eth_call against the contract and unpacks the outputs.
func (c *EVMClient) Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	ab, err := c.abis.lookup(method)
	if err != nil {
		return nil, err
	}

	data, err := ab.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", ErrInvalidArgument, method, err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, classifyRPCError(err)
	}

	out, err := ab.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

// Send estimates gas (surfacing reverts before broadcast), signs with the
// provided signer, and submits the transaction.
func (c *EVMClient) Send(ctx context.Context, contract common.Address, method string, args []interface{}, signer *TxSigner, value *big.Int) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, ErrSignerRequired
	}
	if value == nil {
		value = big.NewInt(0)
	}

	ab, err := c.abis.lookup(method)
	if err != nil {
		return common.Hash{}, err
	}
	data, err := ab.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: pack %s: %v", ErrInvalidArgument, method, err)
	}

	from := signer.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, classifyRPCError(err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, classifyRPCError(err)
	}

	// Estimation doubles as simulation: a revert here means the chain would
	// reject the transaction, and nothing has been broadcast yet.
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &contract,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, classifyRPCError(err)
	}

	tx := gethtypes.NewTransaction(nonce, contract, value, gasLimit, gasPrice, data)
	signed, err := signer.SignTx(tx, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, classifyRPCError(err)
	}

	chainLogger.Debug().
		Str("txHash", signed.Hash().Hex()).
		Str("method", method).
		Str("contract", contract.Hex()).
		Uint64("nonce", nonce).
		Msg("Transaction submitted")

	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or the confirmation
// timeout elapses. Abandoning the wait never retracts the transaction.
func (c *EVMClient) WaitForReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return &Receipt{
				TxHash: txHash,
				Status: receipt.Status,
				Logs:   receipt.Logs,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, classifyRPCError(err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrReceiptTimeout, txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetBalance returns the native balance of an address.
func (c *EVMClient) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, classifyRPCError(err)
	}
	return balance, nil
}

// classifyRPCError splits chain failures into the two classes callers care
// about: reverts (chain rejected the request, reason preserved verbatim) and
// everything else (transport-level, retryable by the caller with backoff).
func classifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[idx+len("execution reverted"):], ":"))
		return &RevertError{Reason: reason}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
