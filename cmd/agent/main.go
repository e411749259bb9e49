package main

import (
	"context"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-tracker/internal/agent"
	"github.com/dvloznov/budget-tracker/internal/cachestore"
	"github.com/dvloznov/budget-tracker/internal/config"
	"github.com/dvloznov/budget-tracker/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("BUDGET_CONFIG"), "Path to agent TOML config (or set BUDGET_CONFIG env)")
	flag.Parse()

	cfg, err := config.LoadAgentConfig(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.Component(logger.NewWithOptions(logger.Options{Level: cfg.LogLevel}), "agent")

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid upstream URL")
	}

	caches, err := cachestore.Open(cfg.CachePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CachePath).Msg("Failed to open cache storage")
	}
	defer caches.Close()

	a, err := agent.New(agent.Config{
		Upstream:    upstream,
		StaticCache: cfg.StaticCacheName,
		DataCache:   cfg.DataCacheName,
		APIPrefix:   cfg.APIPrefix,
		WarmPath:    cfg.WarmPath,
		Manifest:    cfg.Manifest,
	}, caches, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Install(ctx); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	if err := a.Activate(ctx); err != nil {
		log.Error().Err(err).Msg("Activation cleanup failed")
	}

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     a.Handler(),
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("upstream", cfg.UpstreamURL).
			Str("static_cache", cfg.StaticCacheName).
			Str("data_cache", cfg.DataCacheName).
			Str("metrics", agent.MetricsPath).
			Msg("Starting cache agent")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start agent")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Agent forced to shutdown")
	}
	a.Terminate()

	log.Info().Msg("Agent exited")
}
