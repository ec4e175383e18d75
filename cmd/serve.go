package cmd

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

	"github.com/lepinkainen/shelfscan/internal/api"
)

// ServeCmd represents the serve command
type ServeCmd struct {
	Addr string `help:"Listen address (defaults to server.addr from config)"`
}

func (s *ServeCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, func(task string, err error) {
		slog.Warn("Background task failed", "task", task, "error", err)
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("Failed to close application", "error", err)
		}
	}()

	addr := s.Addr
	if addr == "" {
		addr = app.Config.Server.Addr
	}

	handler := api.NewHandler(app.Pipeline, app.Store, app.Engine, app.Profile)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.SetupRouter(app.Config.Server.Mode, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
