package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-tracker/internal/api/handlers"
	"github.com/dvloznov/budget-tracker/internal/api/middleware"
	"github.com/dvloznov/budget-tracker/internal/config"
	infraBQ "github.com/dvloznov/budget-tracker/internal/infra/bigquery"
	"github.com/dvloznov/budget-tracker/internal/logger"
	"github.com/dvloznov/budget-tracker/internal/store"
	"github.com/dvloznov/budget-tracker/internal/store/inmemory"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("BUDGET_CONFIG"), "Path to server TOML config (or set BUDGET_CONFIG env)")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
		static     = flag.String("static", "", "Directory with the client's static assets (overrides config)")
	)
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *static != "" {
		cfg.StaticDir = *static
	}

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel})

	ctx := context.Background()

	txStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("Failed to open transaction store")
	}
	defer txStore.Close()

	transactionsHandler := handlers.NewTransactionsHandler(txStore)

	// Create router
	mux := http.NewServeMux()

	// Transactions endpoints
	mux.HandleFunc("/api/transaction", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transaction/bulk", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			transactionsHandler.BulkCreateTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())

	// Static assets the cache agent pre-installs
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	} else {
		log.Warn().Str("dir", cfg.StaticDir).Msg("Static directory not found - only the API is served")
	}

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Metrics(routeLabel)(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStore(ctx context.Context, cfg config.ServerConfig, log zerolog.Logger) (store.TransactionStore, error) {
	if cfg.Store != "bigquery" {
		log.Warn().Msg("Using in-memory store - transactions are lost on restart")
		return inmemory.NewStore(), nil
	}

	repo, err := infraBQ.NewTransactionRepository(ctx, cfg.Project, cfg.Dataset, cfg.Table)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureTable(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	log.Info().Str("project", cfg.Project).Str("dataset", cfg.Dataset).Str("table", cfg.Table).Msg("Using BigQuery store")
	return repo, nil
}

// routeLabel keeps the metrics label set bounded.
func routeLabel(r *http.Request) string {
	switch r.URL.Path {
	case "/api/transaction", "/api/transaction/bulk", "/health", "/metrics":
		return r.URL.Path
	default:
		return "static"
	}
}
