package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/support-copilot/internal/infra/config"
)

const defaultShutdownTimeout = 10 * time.Second

// App encapsulates the HTTP server lifecycle.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewApp is used by Wire to build the runnable app.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server) *App {
	return &App{
		cfg:             cfg,
		logger:          logger.With("component", "bootstrap"),
		server:          server,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails.
// In-flight analyses get shutdownTimeout to finish before connections are dropped.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting",
			"address", a.cfg.HTTP.Address,
			"embedding_backend", a.cfg.Embedding.Backend,
			"top_k", a.cfg.Matcher.TopK,
			"good_match_threshold", a.cfg.Matcher.GoodMatchThreshold,
		)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.logger.Info("http server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
