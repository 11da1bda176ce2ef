package main

import (
	"context"
	"os"

	"firebase.google.com/go/v4/auth"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/curlos/twitter-2.0-sub000/internal/metrics"
	"github.com/curlos/twitter-2.0-sub000/internal/router"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
	"github.com/curlos/twitter-2.0-sub000/internal/validators"
	"github.com/curlos/twitter-2.0-sub000/pkg/config"
	"github.com/curlos/twitter-2.0-sub000/pkg/firebase"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Logger = logger

	mongoClient, err := config.InitMongo(cfg.MongoURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer config.CloseMongo(mongoClient)

	auditDB, err := config.InitPostgres(cfg.PostgresConnStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer config.ClosePostgres(auditDB)

	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Firebase")
	}

	documentStore := store.NewMongoStore(mongoClient, cfg.MongoDatabase, cfg.InChunkSize, logger)

	metrics.StartServer(":" + cfg.MetricsPort)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e, logger)

	var authClient *auth.Client
	if firebaseApp != nil {
		authClient = firebaseApp.AuthClient
	}
	if err := router.SetupRoutes(e, cfg, documentStore, auditDB, authClient, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up routes")
	}

	logger.Fatal().Err(e.Start(":" + cfg.Port)).Msg("Server stopped")
}
