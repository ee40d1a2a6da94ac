package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ingelean/inge-go/internal/config"
	"github.com/ingelean/inge-go/internal/gateway"
	"github.com/ingelean/inge-go/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logger.L.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	if cfg.Provider.APIKey == "" {
		logger.L.Error("provider api_key is required")
		os.Exit(1)
	}

	client := gateway.NewCompletionClient(cfg.Provider)
	relay := gateway.NewRelay(client, cfg.Provider.Model, cfg.Provider.SystemPrompt)

	mux := http.NewServeMux()
	mux.Handle("/chatbot", relay)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.L.Info("starting inference gateway", "address", addr, "model", cfg.Provider.Model)
	if err := runServer(ctx, srv); err != nil {
		logger.L.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
