package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// Defaults for the signing domain. ChainID and the engine address must be
// pinned per deployment so signed batches cannot be replayed across
// environments.
const (
	DefaultDomainName    = "ParcelMarket"
	DefaultDomainVersion = "1"
	DefaultListenAddr    = ":8000"
)

// Config holds the runtime configuration for the marketplace service
type Config struct {
	ListenAddr    string
	DatabaseURL   string
	AdminAPIKey   string
	DomainName    string
	DomainVersion string
	ChainID       *big.Int
	EngineAddress common.Address
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getEnvWithDefault("LISTEN_ADDR", DefaultListenAddr),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		AdminAPIKey:   os.Getenv("ADMIN_API_KEY"),
		DomainName:    getEnvWithDefault("SIGNING_DOMAIN_NAME", DefaultDomainName),
		DomainVersion: getEnvWithDefault("SIGNING_DOMAIN_VERSION", DefaultDomainVersion),
	}

	if cfg.AdminAPIKey == "" {
		return nil, fmt.Errorf("ADMIN_API_KEY environment variable is required")
	}

	chainIDStr := getEnvWithDefault("CHAIN_ID", "137")
	chainID, ok := new(big.Int).SetString(chainIDStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid CHAIN_ID: %q", chainIDStr)
	}
	cfg.ChainID = chainID

	engineAddr := os.Getenv("ENGINE_ADDRESS")
	if engineAddr == "" {
		return nil, fmt.Errorf("ENGINE_ADDRESS environment variable is required")
	}
	if !common.IsHexAddress(engineAddr) {
		return nil, fmt.Errorf("ENGINE_ADDRESS is not a valid address: %q", engineAddr)
	}
	cfg.EngineAddress = common.HexToAddress(engineAddr)

	return cfg, nil
}

func getEnvWithDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
