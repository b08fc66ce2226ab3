package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/metatavu/pakkasmarja-realtime/internal/connection"
	"github.com/metatavu/pakkasmarja-realtime/internal/constants"
	"github.com/metatavu/pakkasmarja-realtime/internal/routing"
	"github.com/metatavu/pakkasmarja-realtime/internal/services"
	"github.com/metatavu/pakkasmarja-realtime/internal/session"
	"github.com/metatavu/pakkasmarja-realtime/internal/utils"
	"github.com/metatavu/pakkasmarja-realtime/pkg/broker"
	"github.com/metatavu/pakkasmarja-realtime/pkg/encryption"
	"github.com/metatavu/pakkasmarja-realtime/pkg/file"
	"github.com/metatavu/pakkasmarja-realtime/pkg/oauth"
	"github.com/metatavu/pakkasmarja-realtime/pkg/tokenstore"
)

func main() {
	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Optional .env file with login credentials for first-run setups
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded environment overrides from .env")
	}

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if config.Services.Chat.Subtopic == "" {
		config.Services.Chat.Subtopic = constants.SubtopicChatMessages
	}
	if config.Services.Unreads.Subtopic == "" {
		config.Services.Unreads.Subtopic = constants.SubtopicUnreads
	}
	if config.Services.Deliveries.Subtopic == "" {
		config.Services.Deliveries.Subtopic = constants.SubtopicDeliveries
	}

	// Token-at-rest encryption
	encryptionManager := encryption.NewEncryptionManager(fileClient)
	if err := encryptionManager.Initialize(config.Security.AESKeyFile); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption manager")
	}

	tokenStore := tokenstore.NewFileStore(config.Security.TokenFile, fileClient, encryptionManager)

	// Event bus carrying credential changes from the session manager to the
	// connection manager
	bus := evbus.New()

	authClient := oauth.NewTokenClient(config.OAuth.AuthorityURL, config.OAuth.Realm,
		config.OAuth.ClientID, time.Duration(config.OAuth.Timeout)*time.Second)

	sessionManager := session.NewManager(tokenStore, authClient, bus,
		log.With().Str("component", "session").Logger(),
		time.Duration(config.Session.PollInterval)*time.Second,
		time.Duration(config.Session.ExpirySlack)*time.Second)

	connectionManager := connection.NewManager(config.Connection.ParamsURL,
		config.Connection.ClientID, byte(config.Connection.QOS), bus,
		log.With().Str("component", "connection").Logger(), broker.NewClient)

	if err := connectionManager.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start connection manager")
	}

	router := routing.NewRouter(connectionManager,
		log.With().Str("component", "routing").Logger())

	// Consumer services
	var consumers []interface {
		Start() error
		Stop() error
	}

	if config.Services.Chat.Enabled {
		consumers = append(consumers, services.NewChatService(
			config.Services.Chat.Subtopic, router,
			log.With().Str("service", "chat").Logger()))
	}
	if config.Services.Unreads.Enabled {
		consumers = append(consumers, services.NewUnreadsService(
			config.Services.Unreads.Subtopic, router,
			log.With().Str("service", "unreads").Logger()))
	}
	if config.Services.Deliveries.Enabled {
		consumers = append(consumers, services.NewDeliveriesService(
			config.Services.Deliveries.Subtopic, router,
			log.With().Str("service", "deliveries").Logger()))
	}

	for _, consumer := range consumers {
		if err := consumer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start consumer service")
		}
	}

	// Restore a stored credential, or log in with environment credentials
	if err := sessionManager.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session manager")
	}

	if sessionManager.Current() == nil {
		username := os.Getenv("PAKKASMARJA_USERNAME")
		password := os.Getenv("PAKKASMARJA_PASSWORD")
		if username == "" {
			log.Fatal().Msg("No stored credential and PAKKASMARJA_USERNAME not set")
		}

		if _, err := sessionManager.Login(context.Background(), username, password); err != nil {
			log.Fatal().Err(err).Msg("Login failed")
		}
	}

	if err := sessionManager.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session manager")
	}

	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")

	for _, consumer := range consumers {
		if err := consumer.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop consumer service")
		}
	}

	if err := sessionManager.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop session manager")
	}

	if err := connectionManager.Stop(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop connection manager")
	}
}
