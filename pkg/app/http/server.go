package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/config"
)

const defaultShutdownTimeout = 30 * time.Second

// ServeAndWait listens on the configured address until ctx is canceled or the listener dies,
// then drains in-flight requests for at most shutdownTimeout.
func ServeAndWait(ctx context.Context, handler http.Handler, logger *zap.Logger, cfg *config.ServerConfig, shutdownTimeout time.Duration) error {
	if handler == nil || cfg == nil {
		return errors.New("http server needs a handler and a config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	var failed error
	select {
	case <-ctx.Done():
		logger.Info("Stopping HTTP server", zap.Duration("timeout", shutdownTimeout))
	case failed = <-listenErr:
		logger.Error("HTTP server stopped unexpectedly", zap.Error(failed))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if failed != nil {
		return fmt.Errorf("http server: %w", failed)
	}
	logger.Info("HTTP server stopped")
	return nil
}
