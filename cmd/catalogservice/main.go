package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ratelimitmw "github.com/example/routebook/internal/http/middleware"
	"github.com/example/routebook/internal/route/catalog"
	"github.com/example/routebook/internal/route/domain"
	"github.com/example/routebook/internal/route/handler"
	"github.com/example/routebook/internal/route/likes"
	"github.com/example/routebook/internal/route/sheet"
	"github.com/example/routebook/internal/route/votes"
	"github.com/example/routebook/pkg/events"
	"github.com/example/routebook/pkg/observability"
)

type appConfig struct {
	HTTPAddr     string
	CatalogFile  string
	TrackDir     string
	SheetURL     string
	SheetTimeout time.Duration
	SyncTimeout  time.Duration
	SyncInterval time.Duration
	RedisAddr    string
	RedisPrefix  string
	NATSURL      string
	NATSSubject  string
	ReadRate     ratelimitmw.RateConfig
	WriteRate    ratelimitmw.RateConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("catalog-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "catalog-service", nil)
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		logger.Fatal("load catalog", zap.String("path", cfg.CatalogFile), zap.Error(err))
	}
	logger.Info("catalog loaded", zap.Int("routes", cat.Len()))

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("catalogservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	voteStore, countCache := buildStores(redisClient, cfg)
	remote := buildRemote(cfg, logger)
	publisher := events.NewPublisher(natsConn, cfg.NATSSubject)

	svc := likes.New(cat, remote, voteStore, countCache, publisher, domain.SystemClock{}, logger.Named("likes"))

	var limiter *ratelimitmw.RateLimiter
	if redisClient != nil {
		limiter = ratelimitmw.NewRateLimiter(redisClient, cfg.RedisPrefix+"rl", cfg.ReadRate, cfg.WriteRate)
	}
	routeHTTP := handler.NewHTTP(cat, svc, cfg.TrackDir, logger.Named("http"))

	// The API answers 503 until counts are settled.
	var ready atomic.Bool
	r := chi.NewRouter()
	r.Mount("/observability", observability.MetricsRouter(ready.Load))
	r.Mount("/", routeHTTP.Router(ratelimitmw.Ready(ready.Load), limiter.Middleware))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("catalog service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	svc.WarmFromCache(ctx)
	syncCtx, cancelSync := context.WithTimeout(ctx, cfg.SyncTimeout)
	svc.SyncFromRemote(syncCtx)
	cancelSync()
	ready.Store(true)
	logger.Info("like counts settled")

	if cfg.SyncInterval > 0 {
		go func() {
			if err := svc.RunSync(ctx, cfg.SyncInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("like sync stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildStores(redisClient *redis.Client, cfg appConfig) (domain.KeyValueStore, domain.KeyValueStore) {
	if redisClient == nil {
		return votes.NewMemory(), votes.NewMemory()
	}
	return votes.NewRedis(redisClient, cfg.RedisPrefix+"votes:"), votes.NewRedis(redisClient, cfg.RedisPrefix+"counts:")
}

func buildRemote(cfg appConfig, logger *zap.Logger) domain.RemoteLikeStore {
	if cfg.SheetURL == "" {
		logger.Warn("SHEET_API_URL not set; like counts stay local")
		return sheet.Nop{}
	}
	return sheet.NewClient(cfg.SheetURL, nil, cfg.SheetTimeout)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		CatalogFile:  os.Getenv("CATALOG_FILE"),
		TrackDir:     getenv("TRACK_DIR", "./tracks"),
		SheetURL:     os.Getenv("SHEET_API_URL"),
		SheetTimeout: time.Duration(parseIntEnv("SHEET_TIMEOUT_MS", 10000)) * time.Millisecond,
		SyncTimeout:  time.Duration(parseIntEnv("SYNC_TIMEOUT_MS", 15000)) * time.Millisecond,
		SyncInterval: time.Duration(parseIntEnv("SYNC_INTERVAL_SEC", 0)) * time.Second,
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisPrefix:  getenv("REDIS_PREFIX", "routebook:"),
		NATSURL:      os.Getenv("NATS_URL"),
		NATSSubject:  getenv("NATS_SUBJECT", events.DefaultSubject),
		ReadRate: ratelimitmw.RateConfig{
			Rate:  parseFloatEnv("RATE_READ_RPS", 50),
			Burst: parseFloatEnv("RATE_READ_BURST", 100),
		},
		WriteRate: ratelimitmw.RateConfig{
			Rate:  parseFloatEnv("RATE_WRITE_RPS", 2),
			Burst: parseFloatEnv("RATE_WRITE_BURST", 5),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
