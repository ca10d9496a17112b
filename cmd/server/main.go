package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	router "github.com/dkeye/consult/internal/adapters/http"
	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/app/orch"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	reg := app.NewRegistry()
	o := orch.New(reg, app.PolicyByName(cfg.Backpressure))
	o.OnRoomEnded(func(room domain.RoomID) {
		log.Info().Str("module", "main").Str("room", string(room)).Msg("room is empty, consultation over")
	})

	store, err := storage.NewStore(afero.NewOsFs(), cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to open upload store")
	}

	r := router.SetupRouter(ctx, cfg, o, store)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("backpressure", cfg.Backpressure).Msg("consult signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
