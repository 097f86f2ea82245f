package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"twiller/internal/config"
	"twiller/internal/database"
	"twiller/internal/engine"
	"twiller/internal/engine/actors"
	"twiller/internal/handlers"
	"twiller/internal/logger"
	"twiller/internal/middleware"
	"twiller/internal/notify"
	"twiller/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// App holds every running component so they can be shut down in order.
type App struct {
	cfg     *config.Config
	store   database.Store
	engine  *engine.Engine
	limiter *middleware.RateLimiter
	handler http.Handler
	logger  zerolog.Logger
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New("twiller", cfg.Debug)
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Stack().Err(err).Msg("Failed to initialise server")
	}

	if err := app.Serve(ctx); err != nil {
		log.Fatal().Stack().Err(err).Msg("Server stopped with error")
	}
}

// newApp wires storage, the actor engine and the HTTP routes from cfg.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	metrics := utils.NewMetricsCollector()

	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, actors.Deps{
		Store:   store,
		Metrics: metrics,
		Logger:  log,
	}, cfg.Server.RequestTimeout)

	server := handlers.NewServer(eng, store, metrics, notify.NewMatcher(cfg.NotifyKeywords), log)
	server.RequestTimeout = cfg.Server.RequestTimeout

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
	}

	handler := server.Routes(handlers.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsEnabled: cfg.Server.MetricsEnabled,
		TrustProxy:     cfg.Server.TrustProxy,
		RateLimiter:    limiter,
	})

	log.Info().
		Str("backend", store.Name()).
		Strs("notifyKeywords", cfg.NotifyKeywords).
		Bool("metrics", cfg.Server.MetricsEnabled).
		Msg("Server components initialised")

	return &App{
		cfg:     cfg,
		store:   store,
		engine:  eng,
		limiter: limiter,
		handler: handler,
		logger:  log,
	}, nil
}

// Serve listens until ctx is cancelled, then drains requests, stops the actors and
// closes the store.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepStop := make(chan struct{})
	if a.limiter != nil {
		go a.limiter.Run(sweepStop)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			serveErr = errors.Wrap(err, "listen")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	close(sweepStop)

	return multiClose(serveErr, a.Close(shutdownCtx))
}

// Close stops the engine and releases the store.
func (a *App) Close(ctx context.Context) error {
	if err := a.engine.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Engine stop failed")
	}
	if err := a.store.Close(ctx); err != nil {
		return errors.Wrap(err, "close store")
	}
	a.logger.Info().Msg("Server stopped")
	return nil
}

func multiClose(first, second error) error {
	if first != nil {
		return first
	}
	return second
}
