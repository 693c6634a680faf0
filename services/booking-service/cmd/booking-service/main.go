package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/agendei/libs/auth"
	"github.com/md-rashed-zaman/agendei/libs/config"
	"github.com/md-rashed-zaman/agendei/libs/db"
	"github.com/md-rashed-zaman/agendei/libs/grpcx"
	"github.com/md-rashed-zaman/agendei/libs/httpx"
	"github.com/md-rashed-zaman/agendei/libs/kafkax"
	otelx "github.com/md-rashed-zaman/agendei/libs/otel"
	"github.com/md-rashed-zaman/agendei/libs/runtime"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/sweep"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(ctx, 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("BOOKING_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		logger.Error("invalid BOOKING_TIMEZONE", "err", err)
		os.Exit(1)
	}

	m := metrics.New()
	brokers := config.String("KAFKA_BROKERS", "")
	readyChecks := []runtime.ReadyCheck{}

	var (
		store    storage.Store
		notifier booking.Notifier
		pool     *db.Pool
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if config.Bool("DB_AUTO_MIGRATE", true) {
			if err := storage.Migrate(ctx, pool, logger); err != nil {
				logger.Error("db migration failed", "err", err)
				os.Exit(1)
			}
		}
		store = storage.NewPostgres(pool).OnRetry(func(attempt int, err error) {
			m.TxRetry()
			logger.Warn("retrying transaction", "attempt", attempt, "err", err)
		})
		notifier = notify.NewOutboxNotifier(outbox.NewStore(pool))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		mem := storage.NewMemory()
		if seedFile := config.String("SEED_FILE", ""); seedFile != "" {
			if err := loadSeed(ctx, mem, seedFile); err != nil {
				logger.Error("seed load failed", "file", seedFile, "err", err)
				os.Exit(1)
			}
		}
		store = mem
		notifier = notify.NewLogNotifier(logger)
		logger.Warn("DATABASE_URL not set; using in-memory store")
	}

	engine := booking.NewEngine(store, notifier, logger, m, booking.Config{
		Location:       loc,
		MaxPending:     config.Int("BOOKING_MAX_PENDING", booking.DefaultMaxPending),
		SweepBatchSize: config.Int("SWEEP_BATCH_SIZE", booking.DefaultSweepBatchSize),
		NotifyTimeout:  config.Duration("NOTIFY_TIMEOUT", booking.DefaultNotifyTimeout),
	})

	g, gctx := errgroup.WithContext(ctx)

	if pool != nil && strings.TrimSpace(brokers) != "" {
		relay := outbox.NewRelay(pool, logger, m, outbox.RelayConfig{
			Brokers:     brokers,
			PollEvery:   config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:   config.Int("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts: config.Int("OUTBOX_MAX_ATTEMPTS", 20),
		})
		g.Go(func() error {
			relay.Run(gctx)
			return nil
		})

		syncer := catalog.NewSyncer(store, logger, m)
		catalogConsumer := consumer.New(logger, inbox.NewStore(pool), consumer.Config{
			Brokers:  brokers,
			GroupID:  config.String("KAFKA_GROUP_ID", "booking-service"),
			Topics:   config.List("KAFKA_CATALOG_TOPICS", strings.Join(catalog.SyncTopics, ",")),
			Attempts: config.Int("KAFKA_HANDLER_ATTEMPTS", 3),
		}, syncer.Handle)
		g.Go(func() error {
			catalogConsumer.Run(gctx)
			return nil
		})
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	if interval := config.Duration("SWEEP_INTERVAL", time.Minute); interval > 0 {
		worker := sweep.NewWorker(engine, logger, m, sweep.WorkerConfig{Interval: interval})
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	} else {
		logger.Info("expiry sweep disabled; run booking-sweep from cron")
	}

	var jwks *auth.JWKSClient
	if url := config.String("JWKS_URL", ""); url != "" {
		jwks = auth.NewJWKSClient(url, config.Duration("JWKS_CACHE_TTL", 5*time.Minute))
	}
	authn := handlers.NewAuthenticator(auth.NewVerifier(config.String("JWT_SECRET", ""), jwks), config.Bool("TRUST_GATEWAY_HEADERS", false))

	writeLimit := rateLimiter(logger)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", m.Handler())
	handlers.NewBookingHandler(engine, authn, logger).Register(mux, writeLimit)
	handlers.NewCatalogHandler(catalog.NewManager(store, logger), authn, logger).Register(mux, writeLimit)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}

	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		health.Shutdown()
		shutdownCtx, cancel := runtime.ShutdownContext(gctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("booking service stopped with error", "err", err)
	}
	engine.Wait()
	logger.Info("booking service stopped")
}

func loadSeed(ctx context.Context, mem *storage.Memory, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return mem.LoadSeed(ctx, f)
}

// rateLimiter limits mutating routes per caller, shared through redis when REDIS_ADDR is set.
func rateLimiter(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking")).
			WithKey(httpx.UserOrClientKey)
		logger.Info("rate limiting enabled (redis)", "per_minute", limit, "redis_addr", addr)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}
