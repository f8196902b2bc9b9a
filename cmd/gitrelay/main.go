// Command gitrelay bridges a messaging-platform callback channel to the
// GitHub REST API: stream callbacks and NATS requests carry HTTP-shaped
// request envelopes that are routed, executed upstream, and answered with
// response envelopes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Wirebird/gitrelay/internal/adapter/github"
	"github.com/Wirebird/gitrelay/internal/adapter/httpsrv"
	"github.com/Wirebird/gitrelay/internal/adapter/natsrelay"
	relayotel "github.com/Wirebird/gitrelay/internal/adapter/otel"
	"github.com/Wirebird/gitrelay/internal/adapter/ristretto"
	"github.com/Wirebird/gitrelay/internal/adapter/stream"
	"github.com/Wirebird/gitrelay/internal/config"
	"github.com/Wirebird/gitrelay/internal/logger"
	"github.com/Wirebird/gitrelay/internal/relay"
	"github.com/Wirebird/gitrelay/internal/resilience"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"upstream", cfg.GitHub.BaseURL,
		"stream_enabled", cfg.Stream.ClientID != "",
		"nats_enabled", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := relayotel.Init(ctx, cfg.Telemetry.Endpoint, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := relayotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Upstream and core ---
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	gh := github.NewClient(cfg.GitHub.BaseURL, cfg.GitHub.Token, cfg.GitHub.Timeout, github.Options{
		Breaker: breaker,
		Metrics: metrics,
	})
	dispatcher := relay.NewDispatcher(gh, log, metrics)

	g, gctx := errgroup.WithContext(ctx)

	// --- Stream channel ---
	var streamState func() bool
	if cfg.Stream.ClientID != "" {
		deduper, err := ristretto.New(cfg.Dedupe.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("dedupe cache: %w", err)
		}
		defer deduper.Close()

		sc := stream.NewClient(cfg.Stream, cfg.Dedupe.TTL, dispatcher, deduper, log)
		streamState = sc.Connected
		g.Go(func() error { return sc.Run(gctx) })
	}

	// --- NATS channel ---
	if cfg.NATS.URL != "" {
		nr, err := natsrelay.Connect(cfg.NATS, dispatcher, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = nr.Close() }()
	}

	// --- Ops HTTP server ---
	handlers := httpsrv.NewHandlers(dispatcher, cfg.GitHub.BaseURL, breaker, streamState)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpsrv.NewRouter(handlers, cfg.Logging.Service),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g.Go(func() error {
		log.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
