package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/clients/evm"
	"github.com/escrowhq/escrow/cmd/escrow/httpjson"
	"github.com/escrowhq/escrow/config"
	"github.com/escrowhq/escrow/http"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/services"
	"github.com/escrowhq/escrow/utils"
)

func main() {
	flags := parseFlags()
	log := logging.New(os.Stdout, flags.LogLevel, flags.LogJSON)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	// Public read endpoints, rate limited per chain
	publicClients := evm.DialPublicClients(ctx, cfg.PublicRPCURLs, log)
	if _, ok := publicClients[cfg.DefaultChainID]; !ok {
		log.Warn().Uint64(logging.FieldChain, cfg.DefaultChainID).Msg("Default chain endpoint unavailable")
	}

	backends := utils.MapMap(publicClients, func(_ uint64, c *ethclient.Client) evm.Backend {
		return evm.NewRateLimited(c, evm.NewLimiter(cfg.RPCRateLimit))
	})

	registry := config.NewRegistry(nil)
	metricsService := services.NewMetricsService(log)
	cache := services.NewReadCache(cfg.ReadCacheSize, cfg.ReadCacheTTL, metricsService)

	var wallet services.Wallet
	if cfg.HasWallet() {
		keyWallet := services.NewKeyWallet(cfg.WalletRPCURL, cfg.WalletPrivateKey, log)
		defer keyWallet.Close()

		wallet = keyWallet
		log.Info().Msg("Signing wallet configured")
	} else {
		log.Info().Msg("No signing wallet configured, running read-only")
	}

	resolver := services.NewWalletChainContextResolver(
		wallet,
		services.NewSimpleClientResolver(backends),
		cfg.DefaultChainID,
		cache,
		log,
	)

	// Create and start the server
	server := httpjson.New(httpjson.Config{
		Addr:           fmt.Sprintf(":%s", cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
		LogRequests:    true,
		Dependencies: httpjson.Dependencies{
			Escrow: services.NewEscrowService(resolver, registry, metricsService, log),
			History: services.NewHistoryService(
				resolver,
				registry,
				cfg.HistoryChunkSize,
				cfg.HistoryConcurrency,
				metricsService,
				log,
			),
			Sale:       services.NewSaleService(resolver, registry, cache, metricsService, log),
			Staking:    services.NewStakingService(resolver, registry, metricsService, log),
			Governance: services.NewGovernanceService(resolver, registry, cache, metricsService, log),
			Metrics:    metricsService,
		},
	})

	serverShutdown := http.StartAsync(server, log)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Shutdown signal received, cleaning up...")

	serverShutdown(ctx)

	for chainID, client := range publicClients {
		log.Debug().Uint64(logging.FieldChain, chainID).Msg("Closing public endpoint")
		client.Close()
	}

	log.Info().Msg("Shutdown complete")
}

type flagSet struct {
	LogJSON  bool
	LogLevel zerolog.Level
}

func parseFlags() flagSet {
	var (
		logJSON        bool
		logLevel       string
		logLevelParsed zerolog.Level
	)

	flag.BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	flag.StringVar(&logLevel, "log-level", "info", "Set log level (debug, info, warn, error)")

	flag.Parse()

	switch logLevel {
	case "debug":
		logLevelParsed = zerolog.DebugLevel
	case "warn":
		logLevelParsed = zerolog.WarnLevel
	case "error":
		logLevelParsed = zerolog.ErrorLevel
	default:
		logLevelParsed = zerolog.InfoLevel
	}

	return flagSet{
		LogJSON:  logJSON,
		LogLevel: logLevelParsed,
	}
}
