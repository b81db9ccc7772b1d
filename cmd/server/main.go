package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/lavoex/exchange-api/internal/auth"
	"github.com/lavoex/exchange-api/internal/database"
	"github.com/lavoex/exchange-api/internal/earn"
	"github.com/lavoex/exchange-api/internal/funding"
	"github.com/lavoex/exchange-api/internal/ledger"
	"github.com/lavoex/exchange-api/internal/p2p"
	"github.com/lavoex/exchange-api/internal/pricefeed"
	"github.com/lavoex/exchange-api/internal/trading"
	"github.com/lavoex/exchange-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the exchange API server with graceful shutdown
// support. All services share one database handle and one ledger engine;
// the engine is the sole writer of wallet balances.
func main() {
	db, err := database.NewDatabase(os.Getenv("DB_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "lavo-secret-key"
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	engine := ledger.NewEngine(db)

	authService := auth.NewService(db, jwtSecret, engine)
	authHandlers := auth.NewGinHandlers(authService)

	// Bootstrap admin account from environment, if configured
	if adminEmail := os.Getenv("ADMIN_EMAIL"); adminEmail != "" {
		adminPassword := os.Getenv("ADMIN_PASSWORD")
		if adminPassword == "" {
			zlog.Fatal().Msg("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
		}
		if err := authService.EnsureAdmin(adminEmail, adminPassword); err != nil {
			zlog.Fatal().Err(err).Msg("Failed to bootstrap admin account")
		}
	}

	fundingService := funding.NewService(db, engine)
	fundingHandlers := funding.NewGinHandlers(fundingService)

	feed := pricefeed.NewHTTPFeed(os.Getenv("PRICE_FEED_URL"))
	tradingService := trading.NewService(db, engine, feed)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	p2pService := p2p.NewService(db, engine)
	p2pHandlers := p2p.NewGinHandlers(p2pService)

	earnService := earn.NewService(db, engine)
	earnHandlers := earn.NewGinHandlers(earnService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authService, authHandlers, fundingHandlers, tradingHandlers, p2pHandlers, earnHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth and market-data routes: public
// - Account routes: protected by JWT authentication
// - Admin routes: protected by JWT authentication plus the admin flag
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	fundingHandlers *funding.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	p2pHandlers *p2p.GinHandlers,
	earnHandlers *earn.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Public market data
		v1.GET("/prices", tradingHandlers.PricesHandler())
		v1.GET("/p2p/offers", p2pHandlers.ListOffersHandler())
		v1.GET("/earn/products", earnHandlers.ListProductsHandler())

		// Account routes
		account := v1.Group("")
		account.Use(middleware.JWTAuth(authService))
		{
			account.GET("/me", authHandlers.MeHandler())
			account.POST("/kyc/submit", authHandlers.SubmitKYCHandler())

			account.POST("/deposits", fundingHandlers.DepositHandler())
			account.GET("/deposits", fundingHandlers.ListDepositsHandler())
			account.POST("/withdrawals", fundingHandlers.RequestWithdrawalHandler())
			account.GET("/withdrawals", fundingHandlers.ListWithdrawalsHandler())

			account.POST("/orders", tradingHandlers.CreateOrderHandler())
			account.GET("/orders", tradingHandlers.ListOrdersHandler())
			account.GET("/orders/:order_id", tradingHandlers.GetOrderHandler())

			account.POST("/p2p/offers", p2pHandlers.CreateOfferHandler())
			account.POST("/p2p/offers/:offer_id/status", p2pHandlers.UpdateOfferStatusHandler())
			account.POST("/p2p/deals", p2pHandlers.OpenDealHandler())
			account.POST("/p2p/deals/:trade_id/release", p2pHandlers.ReleaseTradeHandler())
			account.POST("/p2p/deals/:trade_id/cancel", p2pHandlers.CancelTradeHandler())
			account.GET("/p2p/deals", p2pHandlers.ListTradesHandler())

			account.POST("/earn/subscriptions", earnHandlers.SubscribeHandler())
			account.POST("/earn/subscriptions/:subscription_id/redeem", earnHandlers.RedeemHandler())
			account.GET("/earn/subscriptions", earnHandlers.ListSubscriptionsHandler())
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(authService), middleware.AdminOnly())
		{
			admin.POST("/withdrawals/:withdrawal_id/decide", fundingHandlers.DecideWithdrawalHandler())
			admin.POST("/earn/products", earnHandlers.CreateProductHandler())
		}
	}
}
