package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	gateway "github.com/pressplay/arcade/internal/adapters/http"
	"github.com/pressplay/arcade/internal/catalog"
	"github.com/pressplay/arcade/internal/config"
	"github.com/pressplay/arcade/internal/portpool"
	"github.com/pressplay/arcade/internal/proc"
	"github.com/pressplay/arcade/internal/session"
	"github.com/pressplay/arcade/internal/store"
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

	var st store.Store
	switch cfg.Store.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Store.Redis.Addr).Msg("redis unreachable")
		}
		st = store.NewRedis(rdb)
	default:
		st = store.NewMemory()
	}

	cat := catalog.NewManager(st)
	ports, err := portpool.New(cfg.PortRange.Min, cfg.PortRange.Max)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid port range")
	}
	launcher := session.SupervisorLauncher{Supervisor: proc.New()}
	broker := session.NewBroker(cat, ports, launcher, st, cfg.AdvertisedHost)

	// Developers may hold one token per device; players are single-session.
	devAuth := gateway.NewAuth(st, gateway.NewTokenRegistry(false))
	playerAuth := gateway.NewAuth(st, gateway.NewTokenRegistry(true))

	devAPI := gateway.NewDeveloperAPI(cat, devAuth)
	playerAPI := gateway.NewPlayerAPI(cat, broker, st, st, playerAuth)

	devSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.DeveloperPort),
		Handler: gateway.SetupDeveloperRouter(cfg, devAPI),
	}
	playerSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.PlayerPort),
		Handler: gateway.SetupPlayerRouter(cfg, playerAPI),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", devSrv.Addr).Msg("developer gateway started")
		if err := devSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", playerSrv.Addr).Msg("player gateway started")
		if err := playerSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := devSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("developer gateway forced to shutdown")
		}
		if err := playerSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("player gateway forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}
