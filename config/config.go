package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DefaultHistoryChunkSize   = uint64(800)
	DefaultHistoryConcurrency = 5
	DefaultReadCacheTTL       = 45 * time.Second
	DefaultReadCacheSize      = 512
	DefaultRPCRateLimit       = 10.0
)

// publicRPCURLs are the no-wallet read endpoints per chain.
// PUBLIC_RPC_URL_<chainID> overrides an entry.
var publicRPCURLs = map[uint64]string{
	EthereumMainnetChainID:  "https://ethereum-rpc.publicnode.com",
	ethereumSepoliaChainID:  "https://ethereum-sepolia-rpc.publicnode.com",
	polygonMainnetChainID:   "https://polygon-rpc.com",
	polygonAmoyChainID:      "https://rpc-amoy.polygon.technology",
	bscMainnetChainID:       "https://bsc-dataseed.bnbchain.org",
	bscTestnetChainID:       "https://data-seed-prebsc-1-s1.bnbchain.org:8545",
	arbitrumMainnetChainID:  "https://arb1.arbitrum.io/rpc",
	baseMainnetChainID:      "https://mainnet.base.org",
	avalancheMainnetChainID: "https://api.avax.network/ext/bc/C/rpc",
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	AllowedOrigins string

	// Wallet endpoint and signing key. Both empty means read-only operation.
	WalletRPCURL     string
	WalletPrivateKey string

	// Chain used for public reads when no wallet is attached
	DefaultChainID uint64

	// Public read endpoints by chain ID
	PublicRPCURLs map[uint64]string

	// Requests per second allowed against each public endpoint
	RPCRateLimit float64

	// Event history scanning
	HistoryChunkSize   uint64
	HistoryConcurrency int

	// Read cache
	ReadCacheTTL  time.Duration
	ReadCacheSize int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:             getEnvOrDefault(getenv, "PORT", "8080"),
		AllowedOrigins:   getenv("ALLOWED_ORIGINS"),
		WalletRPCURL:     strings.TrimSpace(getenv("WALLET_RPC_URL")),
		WalletPrivateKey: strings.TrimPrefix(strings.TrimSpace(getenv("WALLET_PRIVATE_KEY")), "0x"),
		PublicRPCURLs:    make(map[uint64]string, len(publicRPCURLs)),
		ReadCacheSize:    DefaultReadCacheSize,
	}

	var err error

	if cfg.DefaultChainID, err = parseUint(getenv, "DEFAULT_CHAIN_ID", EthereumMainnetChainID); err != nil {
		return nil, err
	}

	if cfg.HistoryChunkSize, err = parseUint(getenv, "HISTORY_CHUNK_SIZE", DefaultHistoryChunkSize); err != nil {
		return nil, err
	}

	concurrency, err := parseUint(getenv, "HISTORY_CONCURRENCY", DefaultHistoryConcurrency)
	if err != nil {
		return nil, err
	}
	cfg.HistoryConcurrency = int(concurrency)

	cfg.RPCRateLimit = DefaultRPCRateLimit
	if raw := getenv("RPC_RATE_LIMIT"); raw != "" {
		if cfg.RPCRateLimit, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, errors.Wrap(err, "invalid RPC_RATE_LIMIT")
		}
	}

	cfg.ReadCacheTTL = DefaultReadCacheTTL
	if raw := getenv("READ_CACHE_TTL"); raw != "" {
		if cfg.ReadCacheTTL, err = time.ParseDuration(raw); err != nil {
			return nil, errors.Wrap(err, "invalid READ_CACHE_TTL")
		}
	}

	for chainID, url := range publicRPCURLs {
		cfg.PublicRPCURLs[chainID] = getEnvOrDefault(getenv, fmt.Sprintf("PUBLIC_RPC_URL_%d", chainID), url)
	}

	if cfg.HistoryChunkSize == 0 {
		return nil, errors.New("HISTORY_CHUNK_SIZE must be positive")
	}

	if cfg.HistoryConcurrency < 1 {
		return nil, errors.New("HISTORY_CONCURRENCY must be positive")
	}

	if (cfg.WalletRPCURL == "") != (cfg.WalletPrivateKey == "") {
		return nil, errors.New("WALLET_RPC_URL and WALLET_PRIVATE_KEY must be set together")
	}

	return cfg, nil
}

// HasWallet reports whether a signing wallet is configured.
func (c *Config) HasWallet() bool {
	return c.WalletRPCURL != "" && c.WalletPrivateKey != ""
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(getenv func(string) string, key, defaultValue string) string {
	if value := strings.TrimSpace(getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseUint(getenv func(string) string, key string, defaultValue uint64) (uint64, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}

	return v, nil
}
