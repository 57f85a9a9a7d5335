package server

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/parcelverse/marketplace-api/internal/chain"
	"github.com/parcelverse/marketplace-api/internal/config"
	"github.com/parcelverse/marketplace-api/internal/handlers"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/services"
	"github.com/parcelverse/marketplace-api/internal/store"
	"go.uber.org/zap"
)

// Handler Definitions
var (
	marketHandler  *handlers.MarketHandler
	adminHandler   *handlers.AdminHandler
	stakingHandler *handlers.StakingHandler

	marketStore store.MarketStore
)

// InitializeHandlers builds the store, chain collaborators and services
func InitializeHandlers(cfg *config.Config) {
	if cfg.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Unable to parse database connection string", zap.Error(err))
		}
		poolConfig.MaxConns = 20
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = time.Minute * 30

		pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			logger.Fatal("Unable to create connection pool", zap.Error(err))
		}

		pgStore := store.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("Unable to ensure database schema", zap.Error(err))
		}
		marketStore = pgStore
		logger.Info("Using postgres market store")
	} else {
		marketStore = store.NewMemoryStore()
		logger.Info("Using in-memory market store")
	}

	// The memory collaborators stand in for the host ledger's registry and
	// token primitives; the engine address is the marketplace operator
	// identity on both.
	registry := chain.NewMemoryRegistry(cfg.EngineAddress)
	ledger := chain.NewMemoryLedger(cfg.EngineAddress)

	signatures := services.NewSignatureService(cfg.DomainName, cfg.DomainVersion, cfg.ChainID, cfg.EngineAddress)
	merkle := services.NewMerkleService(marketStore)
	provisioner := services.NewProvisionService(registry, merkle, cfg.EngineAddress)
	fees := services.NewFeeService(ledger)
	settlement := services.NewSettlementService(marketStore, signatures, provisioner, fees, cfg.EngineAddress)

	// block height approximated from wall-clock seconds
	epoch := time.Now().Unix()
	staking := services.NewStakingService(registry, ledger, cfg.EngineAddress, cfg.EngineAddress, func() uint64 {
		return uint64(time.Now().Unix() - epoch)
	})

	common := handlers.NewCommonServices(marketStore, settlement, merkle, staking, cfg.AdminAPIKey)

	marketHandler = handlers.NewMarketHandler(common)
	adminHandler = handlers.NewAdminHandler(common)
	stakingHandler = handlers.NewStakingHandler(common)
}

// InitializeRoutes registers the settlement and admin surface
func InitializeRoutes(router *gin.Engine, cfg *config.Config) {
	router.Use(configureCORS())

	router.GET("/health", handlers.HealthCheck)

	// if we are not in production, log the request body
	if os.Getenv("GIN_MODE") != "release" {
		router.Use(handlers.LogRequest())
	}

	v1 := router.Group("/api/v1")
	{
		market := v1.Group("/market")
		{
			market.POST("/buy", marketHandler.Buy)
			market.POST("/staking/stake", stakingHandler.Stake)
			market.POST("/staking/claim", stakingHandler.Claim)
			market.POST("/staking/withdraw", stakingHandler.Withdraw)
		}

		admin := v1.Group("/admin")
		admin.Use(handlers.RequireAdminKey(cfg.AdminAPIKey))
		{
			admin.POST("/merkle-roots", adminHandler.SetMerkleRoot)
			admin.PUT("/treasury", adminHandler.SetTreasury)
			admin.PUT("/collections/:address", adminHandler.SetWhitelistedCollection)
			admin.POST("/staking/reward", adminHandler.SetStakingReward)
			admin.POST("/staking/tiers", adminHandler.SetStakingTier)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}

// configureCORS returns a configured CORS middleware
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	return cors.New(corsConfig)
}
