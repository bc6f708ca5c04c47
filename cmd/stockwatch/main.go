package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/custom-orders/internal/config"
	kafkax "github.com/ariefcatur/custom-orders/internal/kafka"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/ariefcatur/custom-orders/internal/redisx"
	"github.com/ariefcatur/custom-orders/internal/stockwatch"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	name := cfg.ServiceName + "-stockwatch"
	log = log.With(zap.String("service", name))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	svc := stockwatch.NewService(rdb, cfg.LowStockThreshold, name, log)

	// Metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	msrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listen", zap.Error(err))
		}
	}()

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockwatchGroup, orders.TopicResourceAdjusted, cfg.StockwatchWorkers, log.Named("kafka"))
	go func() {
		log.Info("stockwatch consumer started",
			zap.String("group", cfg.StockwatchGroup),
			zap.String("topic", orders.TopicResourceAdjusted),
			zap.Int("workers", cfg.StockwatchWorkers),
			zap.Int("threshold", cfg.LowStockThreshold))
		if err := cons.Start(ctx, svc.HandleResourceAdjusted); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = msrv.Shutdown(ctx2)
}
