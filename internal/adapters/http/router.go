package http

import (
	"context"

	"github.com/dkeye/consult/internal/adapters/signal"
	"github.com/dkeye/consult/internal/app/orch"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, store *storage.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &consultHandlers{cfg: cfg, orch: o, store: store}
	r.GET("/files/:name", h.serveFile)

	api := r.Group("/api")
	vc := api.Group("/virtual-consultation")
	vc.GET("/generate-room", h.generateRoom)
	vc.POST("/upload", h.upload)

	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:id/members", h.roomMembers)

	ctrl := signal.NewSignalWSController(o,
		signal.NewConnRateLimiter(cfg.SignalRate, cfg.SignalBurst),
		signal.OptionsFrom(cfg),
	)
	ws := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	}
	r.GET("/ws/signal", ws)
	api.GET("/ws/signal", ws)

	return r
}
