package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ampere-labs/poolbot/internal/bot"
	"github.com/ampere-labs/poolbot/internal/chain"
	"github.com/ampere-labs/poolbot/internal/config"
	"github.com/ampere-labs/poolbot/internal/keyvault"
	"github.com/ampere-labs/poolbot/internal/logger"
	"github.com/ampere-labs/poolbot/internal/pool"
	"github.com/ampere-labs/poolbot/internal/state"
	"github.com/ampere-labs/poolbot/internal/swap"
	"github.com/ampere-labs/poolbot/internal/wallet"
	"github.com/ampere-labs/poolbot/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the pool trading bot.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Pool bot starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	db, err := state.Open(dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.Close(db)
	if err := state.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Core Component Wiring ---
	vault, err := keyvault.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize key vault")
	}

	repo, err := wallet.NewRepository(state.NewWalletStore(db), vault)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize wallet repository")
	}

	client, err := chain.NewEVMClient(chain.EVMClientConfig{
		RPCURL:         cfg.RPCURL,
		ChainID:        cfg.ChainID,
		PollInterval:   cfg.ConfirmPollInterval,
		ConfirmTimeout: cfg.ConfirmTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}
	defer client.Close()
	log.Info().Str("endpoint", cfg.RPCURL).Uint64("chainID", cfg.ChainID).Msg("Chain RPC connected")

	locator, err := pool.NewLocator(client, cfg.FactoryAddress, cfg.FeeTiers)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pool locator")
	}

	executor, err := swap.NewExecutor(client, locator)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize swap executor")
	}

	liquidity, err := pool.NewLiquidityManager(client)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize liquidity manager")
	}

	receipts := state.NewReceiptStore(db)

	// --- 3. Create Bot Instance with Dependency Injection ---
	tradingBot, err := bot.New(bot.Config{
		Wallets:            repo,
		Swapper:            executor,
		Pools:              locator,
		Liquidity:          liquidity,
		Receipts:           receipts,
		RetryAttempts:      cfg.RetryAttempts,
		RetryBackoff:       cfg.RetryBackoff,
		SqrtPriceX96:       cfg.SqrtPriceX96,
		DefaultSlippageBps: cfg.SlippageBps,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot instance")
	}
	log.Info().Msg("Bot instance created successfully")

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(web.Config{
		Port:     os.Getenv("WEB_PORT"),
		Receipts: receipts,
		Stats:    tradingBot,
		DB:       db,
	})
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Block Until Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, stopping")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
