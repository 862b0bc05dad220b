package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/courseai/courseai/backend/internal/analysis/intent"
	"github.com/courseai/courseai/backend/internal/config"
	"github.com/courseai/courseai/backend/internal/handler"
	"github.com/courseai/courseai/backend/internal/logging"
	"github.com/courseai/courseai/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build logger")
	}
	log.Logger = logger
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("no .env file loaded, continuing with system environment variables only")
	}

	rules, err := intent.Load(cfg.Widget.RulesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load response rules")
	}
	logger.Info().Int("rules", len(rules.Rules())).Str("file", cfg.Widget.RulesFile).Msg("response rules loaded")

	chatSvc := chat.NewService(rules, chat.Config{
		Widget: cfg.Widget.ControllerConfig(),
		TTL:    cfg.Session.TTL,
		Logger: &logger,
	})
	go chatSvc.Run(ctx, cfg.Session.SweepInterval)

	router := handler.NewRouter(cfg, chatSvc, logger)

	startServer(ctx, cfg.Server, router, chatSvc, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, chatSvc *chat.Service, logger zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("CourseAI chat backend listening")
	if err := runServer(ctx, srv, chatSvc); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server, chatSvc *chat.Service) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		// Pending replies still fire after shutdown; wait for them.
		_ = chatSvc.Drain(shutdownCtx)
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
