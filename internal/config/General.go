package config

import (
	"encoding/hex"
	"errors"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultFeeTiers      = "100,500,3000,10000"
	DefaultSlippageBps   = 50
	DefaultSqrtPriceX96  = "79228162514264337593543950336" // 2^96, a 1:1 starting price
	DefaultConfirmPoll   = 2 * time.Second
	DefaultConfirmWait   = 3 * time.Minute
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 5 * time.Second
)

// Config holds all application configuration loaded from environment variables.
// It is built once at startup and passed explicitly into each component's
// constructor so tests can inject their own values.
type Config struct {
	// EncryptionKey is the 32-byte symmetric key protecting wallet keys at rest.
	EncryptionKey []byte

	// RPCURL is the JSON-RPC endpoint of the target network.
	RPCURL string
	// ChainID is the chain ID of the target network, used for EIP-155 signing.
	ChainID uint64
	// FactoryAddress is the deployed AMM factory contract.
	FactoryAddress common.Address

	// FeeTiers is the ordered fee-tier enumeration. Order defines probe order
	// and the tie-break when multiple pools exist for the same pair.
	FeeTiers []uint32
	// SlippageBps is the default slippage tolerance in basis points.
	SlippageBps uint32
	// SqrtPriceX96 is the default initialization price for fresh pools.
	SqrtPriceX96 *big.Int

	// ConfirmPollInterval is how often a pending transaction is polled.
	ConfirmPollInterval time.Duration
	// ConfirmTimeout bounds the wait for one confirmation.
	ConfirmTimeout time.Duration

	// RetryAttempts bounds retries around chain-unavailability failures.
	RetryAttempts int
	// RetryBackoff is the base delay between such retries.
	RetryBackoff time.Duration
}

// Load reads configuration from environment variables and validates it.
// The encryption key, RPC endpoint, chain ID and factory address are required.
func Load() (*Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	cfg := &Config{}

	keyHex, err := getEnv("ENCRYPTION_KEY")
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKey, err = hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, errors.New("environment variable ENCRYPTION_KEY must be hex-encoded")
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, errors.New("environment variable ENCRYPTION_KEY must decode to exactly 32 bytes")
	}

	cfg.RPCURL, err = getEnv("RPC_URL")
	if err != nil {
		return nil, err
	}

	cfg.ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return nil, err
	}

	factory, err := getEnv("FACTORY_ADDRESS")
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(factory) {
		return nil, errors.New("environment variable FACTORY_ADDRESS is not a valid hex address")
	}
	cfg.FactoryAddress = common.HexToAddress(factory)

	cfg.FeeTiers, err = ParseFeeTiers(getEnvOr("FEE_TIERS", DefaultFeeTiers))
	if err != nil {
		return nil, err
	}

	slippage, err := getEnvAsUint64Or("DEFAULT_SLIPPAGE_BPS", DefaultSlippageBps)
	if err != nil {
		return nil, err
	}
	if slippage >= 10000 {
		return nil, errors.New("environment variable DEFAULT_SLIPPAGE_BPS must be below 10000")
	}
	cfg.SlippageBps = uint32(slippage)

	sqrtPrice := getEnvOr("DEFAULT_SQRT_PRICE_X96", DefaultSqrtPriceX96)
	cfg.SqrtPriceX96, err = parseBigInt(sqrtPrice)
	if err != nil {
		return nil, errors.New("environment variable DEFAULT_SQRT_PRICE_X96 must be a decimal integer, got: " + sqrtPrice)
	}

	cfg.ConfirmPollInterval, err = getEnvAsDurationOr("CONFIRM_POLL_INTERVAL", DefaultConfirmPoll)
	if err != nil {
		return nil, err
	}
	cfg.ConfirmTimeout, err = getEnvAsDurationOr("CONFIRM_TIMEOUT", DefaultConfirmWait)
	if err != nil {
		return nil, err
	}

	attempts, err := getEnvAsUint64Or("RETRY_ATTEMPTS", DefaultRetryAttempts)
	if err != nil {
		return nil, err
	}
	cfg.RetryAttempts = int(attempts)
	cfg.RetryBackoff, err = getEnvAsDurationOr("RETRY_BACKOFF", DefaultRetryBackoff)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Uint64("ChainID", cfg.ChainID).
		Str("Factory", cfg.FactoryAddress.Hex()).
		Uints32("FeeTiers", cfg.FeeTiers).
		Uint32("SlippageBps", cfg.SlippageBps).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// ParseFeeTiers parses a comma-separated fee-tier enumeration. The order of the
// input is preserved; it is a caller-visible priority policy, not cosmetic.
func ParseFeeTiers(raw string) ([]uint32, error) {
	parts := strings.Split(raw, ",")
	tiers := make([]uint32, 0, len(parts))
	seen := make(map[uint32]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, errors.New("fee tier list contains a non-numeric entry: " + p)
		}
		if v == 0 {
			return nil, errors.New("fee tier 0 is not a valid tier")
		}
		if _, dup := seen[uint32(v)]; dup {
			return nil, errors.New("fee tier list contains a duplicate entry: " + p)
		}
		seen[uint32(v)] = struct{}{}
		tiers = append(tiers, uint32(v))
	}
	if len(tiers) == 0 {
		return nil, errors.New("fee tier list is empty")
	}
	return tiers, nil
}

func parseBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("not a decimal integer: " + s)
	}
	return v, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a fallback default.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint64Or retrieves an optional environment variable as a uint64.
func getEnvAsUint64Or(key string, fallback uint64) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOr retrieves an optional environment variable as a time.Duration.
func getEnvAsDurationOr(key string, fallback time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}
