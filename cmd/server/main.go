package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	data, err := store.OpenSQLite(cfg.Storage.DSN, cfg.Mode == "debug")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	checks := map[string]router.Pinger{"sqlite": data}

	var presenceStore store.PresenceStore = data
	redisPresence := cfg.Presence.Backend == "redis"
	if redisPresence {
		rp, err := store.NewRedisPresenceStore(ctx, cfg.Redis.URL, "huddle:")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		presenceStore = rp
		checks["redis"] = rp
	}
	if n, err := presenceStore.ResetOnline(ctx, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("presence reset failed")
	} else if n > 0 {
		log.Info().Int64("rows", n).Msg("stale presence reset")
	}

	verifier := auth.NewVerifier(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL,
	})

	policy, err := app.NewPolicy(cfg.Realtime.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build backpressure policy")
	}

	channels := core.NewChannelRouter()
	tracker := core.NewPresenceTracker(presenceStore, channels)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Router:   channels,
		Presence: tracker,
		Policy:   policy,
		Messages: data,
		Members:  data,
		Options: orch.Options{
			EnforceMembership: cfg.Realtime.EnforceMembership,
			MaxMessageLen:     cfg.Realtime.MaxMessageLen,
		},
	}
	ctl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		SendBuffer:   cfg.SendBuffer,
		RateBurst:    cfg.Realtime.RateLimit.Burst,
		RateInterval: cfg.Realtime.RateLimit.Interval,
	})
	handlers := router.NewHandlers(router.HandlersConfig{
		Verifier:          verifier,
		Data:              data,
		Presence:          tracker,
		LastSeen:          presenceStore,
		Checks:            checks,
		EnforceMembership: cfg.Realtime.EnforceMembership,
	})

	r := router.SetupRouter(ctx, cfg, handlers, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			// One operation so the steps keep their order.
			"huddle": func(shutdownCtx context.Context) error {
				log.Info().Msg("Shutting down")
				o.Shutdown()
				err := o.Drain(shutdownCtx)
				cancel()
				err = errors.Join(err, srv.Shutdown(shutdownCtx))
				if redisPresence {
					err = errors.Join(err, presenceStore.Close())
				}
				return errors.Join(err, data.Close())
			},
		},
	)

	exitCode := <-wait
	log.Info().Int("code", exitCode).Msg("Server exited")
	os.Exit(exitCode)
}
