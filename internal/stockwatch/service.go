// Package stockwatch follows the resource ledger from its event stream:
// it mirrors quantities into a gauge and raises one low stock alert per
// resource until that resource is restocked.
package stockwatch

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/custom-orders/internal/kafka"
	"github.com/ariefcatur/custom-orders/internal/metrics"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/ariefcatur/custom-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Service struct {
	Redis       *redis.Client
	Threshold   int
	ServiceName string
	Log         *zap.Logger

	// Alert is called once when a resource drops to or below Threshold.
	Alert func(ctx context.Context, p orders.ResourceAdjustedPayload)
}

func NewService(rdb *redis.Client, threshold int, serviceName string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Redis: rdb, Threshold: threshold, ServiceName: serviceName, Log: log}
}

// HandleResourceAdjusted is installed as the consumer handler.
func (s *Service) HandleResourceAdjusted(ctx context.Context, m kafkago.Message) error {
	// 0) cheap filter on the header, when the producer set one
	if t := kafkax.HeaderValue(m, kafkax.HeaderEventType); t != "" && t != orders.EventResourceAdjusted {
		return nil
	}

	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, nothing to retry
		s.Log.Warn("drop undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventResourceAdjusted {
		return nil
	}

	// 2) dedup via Redis on event_id
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := redisx.SetOnce(ctx, s.Redis, dkey, "1", redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[orders.ResourceAdjustedPayload](env.Payload)
	if err != nil {
		s.Log.Warn("drop event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	if err := s.observe(ctx, p); err != nil {
		// let a redelivery try again
		_ = s.Redis.Del(ctx, dkey).Err()
		return err
	}
	return nil
}

func (s *Service) observe(ctx context.Context, p orders.ResourceAdjustedPayload) error {
	metrics.SetResourceQuantity(string(p.Type), p.Name, p.Quantity)

	key := orders.ResourceKey{Type: p.Type, Name: p.Name}
	flag := fmt.Sprintf(redisx.KeyLowStock, s.ServiceName, key)

	if p.Quantity > s.Threshold {
		n, err := s.Redis.Del(ctx, flag).Result()
		if err != nil {
			return fmt.Errorf("clear low stock flag: %w", err)
		}
		if n > 0 {
			s.Log.Info("resource restocked", zap.String("resource", key.String()), zap.Int("quantity", p.Quantity))
		}
		return nil
	}

	raised, err := redisx.SetOnce(ctx, s.Redis, flag, p.ResourceID, 0)
	if err != nil {
		return fmt.Errorf("raise low stock flag: %w", err)
	}
	if !raised {
		return nil
	}
	metrics.RecordLowStock(string(p.Type), p.Name)
	s.Log.Warn("low stock",
		zap.String("resource", key.String()),
		zap.String("resource_id", p.ResourceID),
		zap.Int("quantity", p.Quantity),
		zap.Int("threshold", s.Threshold),
		zap.String("reason", p.Reason))
	if s.Alert != nil {
		s.Alert(ctx, p)
	}
	return nil
}
