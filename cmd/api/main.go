package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/parcelverse/marketplace-api/internal/config"
	"github.com/parcelverse/marketplace-api/internal/logger"
	"github.com/parcelverse/marketplace-api/internal/server"
	"go.uber.org/zap"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		// A missing .env file is fine in production where variables are
		// set directly in the environment.
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	logger.InitLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	r := gin.Default()
	server.InitializeHandlers(cfg)
	server.InitializeRoutes(r, cfg)

	logger.Info("Server starting", zap.String("addr", cfg.ListenAddr))
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("Error starting server", zap.Error(err))
	}
}
