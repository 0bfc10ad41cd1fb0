package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/lead-relay/internal/api"
	"github.com/sungwon/lead-relay/internal/attach"
	"github.com/sungwon/lead-relay/internal/backup"
	"github.com/sungwon/lead-relay/internal/config"
	"github.com/sungwon/lead-relay/internal/logger"
	"github.com/sungwon/lead-relay/internal/provider"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.Config{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting lead-relay")

	// Build the email provider. A misconfigured deploy still serves: the
	// submission handler answers with a config error until it is fixed.
	var esp provider.Provider
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("mail configuration incomplete; submissions will be rejected until fixed")
	} else {
		client := provider.NewHTTPClient(cfg.Mail.Timeout)
		esp, err = provider.New(provider.Config{
			Type:     cfg.Mail.Provider,
			APIKey:   cfg.Mail.APIKey,
			Endpoint: cfg.Mail.Endpoint,
			Domain:   cfg.Mail.Domain,
			Timeout:  cfg.Mail.Timeout,
		}, client)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build email provider")
		}
		log.Info().Str("provider", esp.GetName()).Msg("email provider ready")
	}

	fetcher := attach.NewFetcher(attach.Config{
		MaxCount:      cfg.Attachments.MaxCount,
		MaxFileBytes:  cfg.Attachments.MaxFileBytes,
		MaxTotalBytes: cfg.Attachments.MaxTotalBytes,
		FetchTimeout:  cfg.Attachments.FetchTimeout,
	}, log)

	forwarder := backup.NewForwarder(backup.Config{
		Endpoint: cfg.Backup.Endpoint,
		Secret:   cfg.Backup.Secret,
		Timeout:  cfg.Backup.Timeout,
	}, log)
	if forwarder.Enabled() {
		log.Info().Msg("backup forwarding enabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Cfg:       cfg,
		Provider:  esp,
		Fetcher:   fetcher,
		Forwarder: forwarder,
		Log:       log,
	})

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("lead-relay listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
