package fulfillment

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/lojabr/checkout-core/internal/kafka"
	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/redisx"
)

// Starter is the slice of the order service this consumer drives.
type Starter interface {
	BeginFulfillment(ctx context.Context, orderID string) error
}

// Service moves paid orders into fulfilling as their events arrive.
type Service struct {
	Orders      Starter
	Redis       *redis.Client
	ServiceName string
	Log         *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// HandleOrderPaid consumes one order.paid event. Returning nil commits
// the offset; the transition itself is idempotent, so a redelivery that
// slips past the redis dedup is still harmless.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		s.logger().Warn("drop malformed envelope", zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		if seen, err := redisx.Exists(ctx, s.Redis, dedupKey); err == nil && seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
	if err != nil {
		s.logger().Warn("drop malformed payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	if err := s.Orders.BeginFulfillment(ctx, p.OrderID); err != nil {
		s.logger().Error("begin fulfillment", zap.String("order_id", p.OrderID), zap.Error(err))
		return err
	}

	if s.Redis != nil {
		_ = s.Redis.SetNX(ctx, dedupKey, "1", redisx.TTLDedup).Err()
	}
	s.logger().Info("order fulfilling", zap.String("order_id", p.OrderID))
	return nil
}
