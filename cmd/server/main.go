package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files into the environment
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/nft-marketplace/internal/config"     // Internal config loader
	"github.com/iliyamo/nft-marketplace/internal/database"   // MySQL connection helper
	"github.com/iliyamo/nft-marketplace/internal/handler"    // HTTP handlers
	"github.com/iliyamo/nft-marketplace/internal/ledger"     // Marketplace ledger core
	"github.com/iliyamo/nft-marketplace/internal/middleware" // Rate limiting and caching middleware
	"github.com/iliyamo/nft-marketplace/internal/queue"      // RabbitMQ transfer-log consumer
	"github.com/iliyamo/nft-marketplace/internal/repository" // DB repositories
	"github.com/iliyamo/nft-marketplace/internal/router"     // Route registration
	queuepublisher "github.com/iliyamo/nft-marketplace/internal/service"
)

func main() {
	// Load a local .env when present; in production the environment is
	// expected to be populated by the deployment.
	_ = godotenv.Load()

	cfg := config.Load() // Load environment config

	// Open the MySQL connection.  All ledger state (assets, listings,
	// wallets, accrued fees) and the auth tables live here.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// The store wraps the DB into the ledger's transactional backend.
	store := repository.NewStore(db)

	// Every mint, listing and purchase is announced on RabbitMQ; the
	// consumer below appends them to logs/market.log.
	sink := queuepublisher.NewTransferPublisher()
	led := ledger.New(store, cfg.MarketAccountID, sink)

	// Auth repositories and handler.  Registration provisions a wallet so
	// the ledger never sees an account without one.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	wallets := repository.NewWalletRepo(db)
	authH := handler.NewAuthHandler(cfg, users, tokens, wallets)

	marketH := handler.NewMarketHandler(led)
	walletH := handler.NewWalletHandler(led)
	publicH := handler.NewPublicHandler(led)

	// Start the transfer-event consumer in the background.  The consumer
	// reconnects on its own, so a RabbitMQ outage does not take the API down.
	go func() {
		if err := queue.StartTransferConsumer(); err != nil {
			log.Printf("transfer consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance

	// Redis backs both the token-bucket rate limiter and the public
	// browse cache.  Both degrade to no-ops when disabled or unreachable.
	rdb := config.NewRedisClient()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	browseCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e) // Health check
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, publicH, browseCache)
	router.RegisterMarket(e, marketH, walletH, cfg.JWTSecret)
	router.RegisterOperator(e, walletH, cfg.JWTSecret)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
