package http

import (
	"context"
	"crypto/rand"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func sessionSecret(cfg *config.Config) []byte {
	if cfg.Secret != "" {
		return []byte(cfg.Secret)
	}
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	log.Warn().Str("module", "adapters.http").Msg("no session secret configured, sessions end with the process")
	return b
}

func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(Metrics())

	store := cookie.NewStore(sessionSecret(cfg))
	store.Options(sessions.Options{Path: "/", MaxAge: int(cfg.Auth.TokenTTL.Seconds()), HttpOnly: true})
	r.Use(sessions.Sessions("HuddleSession", store))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/auth/session", h.CreateSession)
	api.DELETE("/auth/session", h.DeleteSession)

	authed := api.Group("", h.RequireIdentity())
	authed.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	channels := authed.Group("/channels")
	channels.GET("", h.ListChannels)
	channels.POST("", h.CreateChannel)
	channels.GET("/:id", h.GetChannel)
	channels.POST("/:id/join", h.JoinChannel)
	channels.POST("/:id/leave", h.LeaveChannel)

	authed.GET("/messages/:channelId", h.ListMessages)

	presence := authed.Group("/presence")
	presence.GET("/online", h.OnlineUsers)
	presence.GET("/users/:id", h.UserPresence)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
