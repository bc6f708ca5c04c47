package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/custom-orders/internal/auth"
	"github.com/ariefcatur/custom-orders/internal/config"
	"github.com/ariefcatur/custom-orders/internal/httpx"
	kafkax "github.com/ariefcatur/custom-orders/internal/kafka"
	"github.com/ariefcatur/custom-orders/internal/memstore"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/ariefcatur/custom-orders/internal/postgres"
	"github.com/ariefcatur/custom-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatal("config", zap.Error(err))
	}
	log = log.With(zap.String("service", cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var (
		store orders.Store
		users auth.UserStore
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := memstore.New()
		store, users = mem, mem
		log.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{
			MaxConns: int32(cfg.PostgresMaxConns),
			MinConns: int32(cfg.PostgresMinConns),
		})
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
		store, users = &orders.PgStore{DB: db}, &auth.UserRepo{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, cache and idempotency degrade to misses", zap.Error(err))
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
	prod.Start(ctx)

	// Services
	authSvc := auth.NewService(users, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, log.Named("auth"))
	if cfg.AdminEmail != "" {
		_, err := authSvc.EnsureAdmin(ctx, auth.SignupInput{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		})
		if err != nil {
			log.Fatal("bootstrap admin", zap.Error(err))
		}
	}
	engine := orders.NewService(store, prod, redisx.NewOrderCache(rdb, log.Named("cache")), log.Named("orders"), cfg.ServiceName)

	// Router & handlers
	router := httpx.NewRouter(log.Named("http"))
	(&httpx.AuthHandler{Auth: authSvc, Log: log.Named("http")}).Register(router)
	(&httpx.OrdersHandler{
		Orders: engine,
		Idem:   redisx.NewIdempotency(rdb),
		Log:    log.Named("http"),
	}).Register(router, authSvc)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox, flush and close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
