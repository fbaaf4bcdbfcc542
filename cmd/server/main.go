// Package main runs the token sale ledger service: the HTTP API, the
// websocket event feed, Prometheus metrics and the purchase event archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"token-presale-ledger/internal/api"
	"token-presale-ledger/internal/domain"
	"token-presale-ledger/internal/events"
	"token-presale-ledger/internal/observability"
	"token-presale-ledger/internal/presale"
	bankmem "token-presale-ledger/internal/settlement/memory"
	"token-presale-ledger/internal/storage"
	chstore "token-presale-ledger/internal/storage/clickhouse"
	"token-presale-ledger/internal/storage/memory"
	"token-presale-ledger/internal/storage/migrations"
	pgstore "token-presale-ledger/internal/storage/postgres"
)

// Well-known mainnet stable mints, accepted by default.
const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	usdtMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "Prometheus metrics HTTP address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	programID := flag.String("program-id", os.Getenv("PROGRAM_ID"), "Program ID anchoring sale address derivation (base58)")
	tokenMint := flag.String("token-mint", os.Getenv("TOKEN_MINT"), "Mint address of the token being sold (base58)")
	tokenDecimals := flag.Uint("token-decimals", 9, "Decimals of the sale token")
	stableMints := flag.String("stable-mints", envOr("STABLE_MINTS", usdcMint+","+usdtMint), "Comma-separated accepted stable mints")
	stableDecimals := flag.Uint("stable-decimals", 6, "Decimals of the accepted stable mints")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *programID == "" {
		logger.Fatal("--program-id is required")
	}
	if *tokenMint == "" {
		logger.Fatal("--token-mint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	saleStore, eventStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	// Event fan-out: process log, metrics, purchase archive, websocket feed.
	broadcaster := events.NewBroadcaster(log.New(os.Stdout, "[feed] ", log.LstdFlags), nil)
	defer broadcaster.Close()

	sink := events.NewMultiSink(
		events.NewLogSink(log.New(os.Stdout, "[event] ", log.LstdFlags)),
		observability.NewMetricsSink(metrics),
		events.NewArchiveSink(eventStore),
		broadcaster,
	)

	// Ledger service
	cfg := presale.Config{
		ProgramID: *programID,
		TokenMint: domain.MintInfo{Address: *tokenMint, Decimals: uint8(*tokenDecimals)},
	}
	for _, mint := range strings.Split(*stableMints, ",") {
		mint = strings.TrimSpace(mint)
		if mint != "" {
			cfg.StableMints = append(cfg.StableMints, domain.MintInfo{Address: mint, Decimals: uint8(*stableDecimals)})
		}
	}

	bank := bankmem.NewBank(*programID)
	svc := presale.New(presale.Options{
		Store:      saleStore,
		Settlement: bank,
		Inventory:  bank,
		Sink:       sink,
		Logger:     log.New(os.Stdout, "[ledger] ", log.LstdFlags|log.Lshortfile),
		Config:     cfg,
	})

	// HTTP API
	mux := http.NewServeMux()
	api.NewServer(api.Options{
		Service:    svc,
		SaleStore:  saleStore,
		EventStore: eventStore,
		Metrics:    metrics,
		Logger:     logger,
	}).Routes(mux)
	mux.Handle("GET /v1/events", broadcaster)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	apiServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics server, separate listener
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", observability.Handler())
	metricsServer := &http.Server{
		Addr:              *metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Printf("API listening on %s", *listenAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Printf("Metrics listening on %s", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.FeedSubscribers.Set(float64(broadcaster.SubscriberCount()))
			}
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-errCh:
		logger.Printf("Server error: %v", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Metrics shutdown: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the sale and purchase event stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.SaleStore, storage.PurchaseEventStore, func(), error) {
	if useMemory {
		return memory.NewSaleStore(), memory.NewPurchaseEventStore(), func() {}, nil
	}

	// PostgreSQL holds the authoritative sale records
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse archives the purchase event stream
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return pgstore.NewSaleStore(pool), chstore.NewPurchaseEventStore(chConn), cleanup, nil
}

// envOr returns the environment variable value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
