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
	"github.com/ingelean/inge-go/internal/handler"
	"github.com/ingelean/inge-go/internal/logger"
	"github.com/ingelean/inge-go/internal/persist"
	"github.com/ingelean/inge-go/internal/session"
	"github.com/ingelean/inge-go/internal/store"
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

	local, err := persist.NewFileStore(cfg.Persist.Dir)
	if err != nil {
		logger.L.Error("failed to open local persistence", "error", err)
		os.Exit(1)
	}

	// The conversation store is a best-effort mirror; the service runs
	// without it.
	var convStore store.Store
	if sqlite, err := store.OpenSQLite(cfg.Store.Path); err != nil {
		logger.L.Warn("conversation store unavailable, mirroring disabled", "error", err)
	} else {
		convStore = sqlite
		defer sqlite.Close()
	}

	mirror := store.NewMirror(convStore, 64, 10*time.Second)
	defer mirror.Close()

	gw := gateway.NewHTTPClient(cfg.Gateway.URL, nil)
	ctrl := session.New(gw, local, mirror, cfg.Gateway.Timeout)

	router := handler.NewRouter(ctrl, convStore)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.L.Info("starting widget backend", "address", addr)
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
