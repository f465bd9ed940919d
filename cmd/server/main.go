package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/TournIQueT-gl/Gaminghub-sub001/internal/adapters/http"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/adapters/redisbus"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/adapters/store"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/adapters/token"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/app"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/app/orch"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/config"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	policy, err := app.PolicyByName(cfg.Hub.Backpressure)
	if err != nil {
		return err
	}
	rooms := app.NewRoomManager(cfg.Hub.RoomShards)
	deps := orch.Deps{
		Registry: app.NewRegistry(rooms),
		Rooms:    rooms,
		Fanout:   app.NewFanout(policy),
		Typing:   app.NewTypingTracker(cfg.Hub.TypingTTL),
		Limiter:  app.NewChatRateLimiter(cfg.Hub.ChatRate.Limit, cfg.Hub.ChatRate.Interval),
	}

	if cfg.Auth.JWTSecret != "" {
		deps.Verifier = token.New(cfg.Auth.JWTSecret)
	}

	var history router.HistoryReader
	if cfg.Persistence.PGURL != "" {
		pg, err := store.Open(ctx, cfg.Persistence.PGURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		deps.Persister = app.NewPersister(pg, app.PersisterOptions{
			Workers:   cfg.Persistence.Workers,
			QueueSize: cfg.Persistence.QueueSize,
			Timeout:   cfg.Persistence.Timeout,
		})
		deps.Authorizer = pg
		history = pg
	} else {
		log.Warn().Msg("persistence.pg_url not set, chat is not stored")
	}

	public := make([]domain.RoomID, 0, len(cfg.Hub.PublicRooms))
	for _, r := range cfg.Hub.PublicRooms {
		public = append(public, domain.RoomID(r))
	}
	o := orch.New(deps, orch.Options{
		EchoToSender:      cfg.Hub.EchoToSender,
		RequireMembership: cfg.Hub.RequireMembership,
		RequireToken:      cfg.Auth.RequireToken,
		EnforceRoomACL:    cfg.Persistence.EnforceRoomACL && deps.Authorizer != nil,
		PublicRooms:       public,
		MaxContentLen:     cfg.Hub.MaxContentLen,
	})

	if deps.Persister != nil {
		deps.Persister.Start(ctx)
		defer deps.Persister.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Redis.Addr != "" {
		bus, err := redisbus.New(ctx, redisbus.Options{
			Addr:             cfg.Redis.Addr,
			DB:               cfg.Redis.DB,
			NotifyChannel:    cfg.Redis.NotifyChannel,
			RoomEventChannel: cfg.Redis.RoomEventChannel,
		}, o)
		if err != nil {
			return err
		}
		defer bus.Close()
		g.Go(func() error { return bus.Run(gctx) })
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(gctx, cfg, o, history),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Gaminghub server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		n := o.Shutdown()
		log.Info().Int("connections", n).Msg("connections closed")
		return nil
	})

	return g.Wait()
}
