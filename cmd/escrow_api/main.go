package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/projectpay-escrow-engine/internal/api_gateway"
	"github.com/projectpay-escrow-engine/internal/config"
	"github.com/projectpay-escrow-engine/internal/data/postgres"
	"github.com/projectpay-escrow-engine/internal/engine/service"
	"github.com/projectpay-escrow-engine/internal/logger"
	"github.com/projectpay-escrow-engine/internal/outbox_poller"
	"github.com/projectpay-escrow-engine/internal/platform/messaging/producers"
	"github.com/projectpay-escrow-engine/internal/platform/persistence"
	"github.com/projectpay-escrow-engine/internal/platform/processor"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("escrow_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Escrow API",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize the financial store with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for escrow events published from the outbox
	eventProducer, err := producers.NewEscrowEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize escrow event Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	escrowRepo := postgres.NewEscrowRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	paymentRepo := postgres.NewPaymentRepository(log, postgresDB)
	changeOrderRepo := postgres.NewChangeOrderRepository(log, postgresDB)
	disputeRepo := postgres.NewDisputeRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)

	// Initialize the external payment processor client
	processorClient := processor.NewClient(log, &cfg.Processor)

	// Initialize services
	fundsManager := service.NewFundsManager(escrowRepo, ledgerRepo, disputeRepo, log)
	eventRecorder := service.NewEventRecorder(outboxRepo, log)

	escrowService := service.NewEscrowService(escrowRepo, ledgerRepo, fundsManager, eventRecorder, processorClient, postgresDB, log)
	paymentService := service.NewPaymentService(paymentRepo, escrowRepo, ledgerRepo, fundsManager, eventRecorder, processorClient, postgresDB, log)
	changeOrderService := service.NewChangeOrderService(changeOrderRepo, escrowRepo, paymentRepo, eventRecorder, postgresDB, log)
	disputeService := service.NewDisputeService(disputeRepo, escrowRepo, paymentRepo, fundsManager, eventRecorder, processorClient, postgresDB, log)
	projectionService := service.NewProjectionService(escrowRepo, paymentRepo, disputeRepo, log)

	// Initialize outbox poller
	eventPublisher := outbox_poller.NewEventPublisher(outboxRepo, eventProducer, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, eventPublisher, log)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, escrowService, paymentService, changeOrderService, disputeService, projectionService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context to stop the poller
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Wait for the poller to finish its current batch
	wg.Wait()

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing escrow event Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
