package router

import (
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/curlos/twitter-2.0-sub000/internal/engagement"
	"github.com/curlos/twitter-2.0-sub000/internal/handlers"
	"github.com/curlos/twitter-2.0-sub000/internal/middleware"
	"github.com/curlos/twitter-2.0-sub000/internal/realtime"
	"github.com/curlos/twitter-2.0-sub000/internal/reconcile"
	"github.com/curlos/twitter-2.0-sub000/internal/socialgraph"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
	"github.com/curlos/twitter-2.0-sub000/internal/tweets"
	"github.com/curlos/twitter-2.0-sub000/internal/users"
	"github.com/curlos/twitter-2.0-sub000/pkg/config"
)

// SetupMiddleware configures global Echo middleware.
func SetupMiddleware(e *echo.Echo, logger zerolog.Logger) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	e.Use(middleware.RequestLogger(logger))
}

// SetupRoutes wires the engine services and registers all routes.
func SetupRoutes(e *echo.Echo, cfg *config.Config, st store.Store, auditDB *gorm.DB, firebaseAuthClient *auth.Client, logger zerolog.Logger) error {
	if err := reconcile.Migrate(auditDB); err != nil {
		return err
	}

	// --- Engine services ---
	userService := users.NewService(st, logger)
	graphService := socialgraph.NewService(st, logger)
	engagementService := engagement.NewService(st, logger)
	tweetService := tweets.NewService(st, graphService, logger)
	reconcileService := reconcile.NewService(st, auditDB, cfg.BackfillPageSize, cfg.BackfillPagesPerSec, logger)
	realtimeManager := realtime.NewManager(st, logger)

	e.GET("/health", handlers.HealthCheck)

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	authHandler := handlers.NewAuthHandler(userService, firebaseAuthClient, cfg.JWTSecret)
	authHandler.RegisterAuthRoutes(authGroup)

	// --- Protected routes ---
	api := e.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTSecret, firebaseAuthClient))

	userHandler := handlers.NewUserHandler(userService, graphService)
	userHandler.RegisterUserRoutes(api)

	tweetHandler := handlers.NewTweetHandler(tweetService, graphService)
	tweetHandler.RegisterTweetRoutes(api)

	engagementHandler := handlers.NewEngagementHandler(engagementService)
	engagementHandler.RegisterEngagementRoutes(api)

	streamHandler := handlers.NewStreamHandler(realtimeManager, logger)
	api.GET("/ws", streamHandler.HandleStream)

	// --- Operator-only control surface ---
	admin := e.Group("/api/v1/admin")
	admin.Use(middleware.AdminOnly(cfg.AdminToken))
	adminHandler := handlers.NewAdminHandler(reconcileService)
	adminHandler.RegisterAdminRoutes(admin)

	logger.Info().Msg("All routes configured")
	return nil
}
