package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderpay/internal/config"
	"orderpay/internal/handler"
	"orderpay/internal/logging"
	"orderpay/internal/middleware"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("gateway", cfg.LogLevel, cfg.AppEnv)

	orderProxy, err := newProxy(cfg.OrderServiceURL, logger)
	if err != nil {
		logger.Error("failed to configure order proxy", "error", err)
		os.Exit(1)
	}
	paymentProxy, err := newProxy(cfg.PaymentServiceURL, logger)
	if err != nil {
		logger.Error("failed to configure payment proxy", "error", err)
		os.Exit(1)
	}

	health := handler.NewGatewayHealthHandler(cfg.OrderServiceURL, cfg.PaymentServiceURL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("GET /health/live", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Health)
	mux.Handle("/orders", orderProxy)
	mux.Handle("/orders/", orderProxy)
	mux.Handle("/account", paymentProxy)
	mux.Handle("/account/", paymentProxy)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("gateway started", "addr", addr)
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
	logger.Info("stopped")
}

func newProxy(rawURL string, logger *slog.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("newProxy: parse %q: %w", rawURL, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed",
			"target", target.Host,
			"path", r.URL.Path,
			"error", err,
		)
		handler.RespondAppError(w, handler.ErrUpstreamUnavailable, nil)
	}
	return proxy, nil
}
