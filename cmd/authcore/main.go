package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-core/cache"
	"github.com/jrsteele09/go-auth-core/internal/config"
	"github.com/jrsteele09/go-auth-core/internal/postgres"
	"github.com/jrsteele09/go-auth-core/internal/rediscache"
	"github.com/jrsteele09/go-auth-core/provider"
	"github.com/jrsteele09/go-auth-core/session"
	"github.com/jrsteele09/go-auth-core/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authcore stopped")
	}
	log.Info().Msg("authcore stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx := context.Background()

	store, err := postgres.Open(ctx, c.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer store.Close()

	kv, err := rediscache.Open(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB())
	if err != nil {
		return err
	}
	defer kv.Close()

	storage, err := wireCore(c, store, kv)
	if err != nil {
		return err
	}

	stopCleanup := startCleanup(ctx, storage, c.GetCleanupInterval())
	defer stopCleanup()

	waitForStopSignal()
	return nil
}

// wireCore assembles the codec, providers, storage service and token manager.
func wireCore(c config.Config, store session.Store, kv cache.KVCache) (*session.StorageService, error) {
	codec, err := token.NewCodec(c.GetTokenSecret(), c.GetFingerprintSalt(),
		token.WithIssuer(c.GetTokenIssuer()))
	if err != nil {
		return nil, err
	}

	cacheMgr, err := cache.NewManager(kv, cache.WithPermissionTTL(c.GetPermissionTTL()))
	if err != nil {
		return nil, err
	}

	storage, err := session.NewStorageService(store, cacheMgr)
	if err != nil {
		return nil, err
	}

	jwtProvider, err := provider.NewJWTProvider(codec)
	if err != nil {
		return nil, err
	}
	registry, err := provider.NewManager(jwtProvider)
	if err != nil {
		return nil, err
	}

	tokenMgr, err := token.NewManager(codec, registry, storage, store, cacheMgr,
		token.WithAccessTTL(c.GetAccessTTL()),
		token.WithRefreshTTL(c.GetRefreshTTL(), c.GetRememberRefreshTTL()))
	if err != nil {
		return nil, err
	}
	jwtProvider.SetSessionResolver(tokenMgr)

	return storage, nil
}

// startCleanup runs the expired-session sweep on a ticker until the returned
// stop function is called.
func startCleanup(ctx context.Context, storage *session.StorageService, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				count, err := storage.CleanupExpiredSessions(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("session cleanup sweep failed")
					continue
				}
				if count > 0 {
					log.Info().Int("expired", count).Msg("session cleanup sweep")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
