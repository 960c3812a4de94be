package main

import (
	"log"

	"stocklink/internal/api"
	"stocklink/internal/config"
	"stocklink/internal/database"
	"stocklink/internal/events"
	"stocklink/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize event publisher
	publisher := events.NewPublisher(cfg.KafkaBrokers, logger)
	if kafkaPublisher, ok := publisher.(*events.KafkaPublisher); ok {
		defer kafkaPublisher.Close()
	}

	// Initialize API server
	server := api.New(cfg, logger, db, publisher)

	// Start server
	logger.Info("Starting API server on port %s", cfg.APIPort)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
