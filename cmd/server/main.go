package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mutqin/backend/internal/analytics"
	"github.com/mutqin/backend/internal/api"
	"github.com/mutqin/backend/internal/assessment"
	"github.com/mutqin/backend/internal/auth"
	"github.com/mutqin/backend/internal/config"
	"github.com/mutqin/backend/internal/corpus"
	"github.com/mutqin/backend/internal/database"
	"github.com/mutqin/backend/internal/fluency"
	"github.com/mutqin/backend/internal/ingest"
	"github.com/mutqin/backend/internal/metrics"
	"github.com/mutqin/backend/internal/planner"
	"github.com/mutqin/backend/internal/reducer"
	"github.com/mutqin/backend/internal/session"
)

// redisCache adapts go-redis to the corpus byte-cache interface.
type redisCache struct {
	client *redis.Client
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.Server.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()
	store := database.NewStore(db, logger)

	m := metrics.New()

	var cache corpus.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, corpus cache is in-process only", zap.Error(err))
		} else {
			cache = &redisCache{client: client}
		}
		defer client.Close()
	}

	corpusSvc := corpus.NewService(store, cache, logger)
	if ok, err := corpusSvc.Seeded(context.Background()); err != nil {
		logger.Warn("corpus seed check failed", zap.Error(err))
	} else if !ok {
		logger.Warn("ayah corpus is empty, fluency tests will fail until it is seeded")
	}
	reducerSvc := reducer.NewService(store, logger, m)
	dispatcher := reducer.NewDispatcher(reducerSvc, logger, m).WithTimeout(cfg.Scheduler.ReducerTimeout)
	ingestSvc := ingest.NewService(store, dispatcher, logger, m)
	assessmentSvc := assessment.NewService(store, logger)
	fluencySvc := fluency.NewService(store, corpusSvc, logger, m)
	plannerSvc := planner.NewService(store, logger, m)
	sessionSvc := session.NewService(store, plannerSvc, ingestSvc, logger, m)
	analyticsSvc := analytics.NewService(store, logger)

	verifier := auth.NewHMACVerifier(cfg.Auth.TokenSecret)

	server := api.NewServer(cfg.Server, api.Services{
		Assessment: assessmentSvc,
		Fluency:    fluencySvc,
		Planner:    plannerSvc,
		Session:    sessionSvc,
		Ingest:     ingestSvc,
		Analytics:  analyticsSvc,
	}, verifier, store, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		dispatcher.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}
