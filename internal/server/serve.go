package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chinmina/chinmina-components/internal/config"
	"github.com/rs/zerolog/log"
)

// Serve runs server until ctx is cancelled or the process receives SIGINT or
// SIGTERM. In-flight requests are then given the configured shutdown timeout
// to complete before the hooks are executed.
func Serve(ctx context.Context, cfg config.ServerConfig, server *http.Server, hooks *ShutdownHooks) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server: listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("server: shutdown requested")

	timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		log.Warn().Err(err).Msg("server: graceful shutdown incomplete")
	}

	if hooks != nil {
		if hookErr := hooks.Execute(shutdownCtx); hookErr != nil {
			log.Warn().Err(hookErr).Msg("server: shutdown hooks failed")
		}
	}

	log.Info().Msg("server: shutdown complete")

	return err
}
