package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"orderpay/internal/broker"
	"orderpay/internal/config"
	"orderpay/internal/handler"
	"orderpay/internal/leader"
	"orderpay/internal/logging"
	"orderpay/internal/middleware"
	"orderpay/internal/outbox"
	"orderpay/internal/repository"
	"orderpay/internal/service"
)

// Advisory lock key for the payment outbox relay. Distinct from the order
// service's key so the two relays elect leaders independently.
const relayLockKey int64 = 7002

func main() {
	cfg, err := config.LoadService()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("payment-service", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	client, err := broker.Connect(ctx, cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	publisher, err := broker.NewPublisher(ctx, client)
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	accountRepo := repository.NewAccountRepository(db)
	outboxRepo := repository.NewOutboxRepository(db, repository.TablePaymentOutbox)
	inboxRepo := repository.NewInboxRepository(db, repository.TablePaymentInbox)
	payments := service.NewPaymentService(accountRepo, outboxRepo, inboxRepo, db)

	accountHandler := handler.NewAccountHandler(payments)
	healthHandler := handler.NewHealthHandler(db, client)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	protected := func(h http.HandlerFunc) http.Handler {
		return middleware.Identity(h)
	}
	mux.Handle("POST /account", protected(accountHandler.Create))
	mux.Handle("POST /account/deposit", protected(accountHandler.Deposit))
	mux.Handle("GET /account", protected(accountHandler.Balance))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup

	election := leader.NewElection(db, relayLockKey, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		election.Run(ctx, time.Duration(cfg.LeaderElectionIntervalS)*time.Second)
	}()

	relay := outbox.NewRelay(
		outboxRepo,
		publisher,
		logger,
		time.Duration(cfg.OutboxIntervalMS)*time.Millisecond,
		cfg.OutboxBatchSize,
		election.IsLeader,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Start(ctx)
	}()

	consumer := broker.NewConsumer(
		client,
		broker.QueuePaymentRequests,
		logger,
		cfg.ConsumerMaxAttempts,
		time.Duration(cfg.ConsumerRetryBackoffMS)*time.Millisecond,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx, payments.HandlePaymentRequested); err != nil && ctx.Err() == nil {
			logger.Error("consumer stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	wg.Wait()
	logger.Info("stopped")
}
