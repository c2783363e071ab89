package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

// SubscribeToAuctionEvents blocks, feeding every decodable event to handler,
// until ctx is cancelled. Handler errors are logged and do not stop the loop.
func (r *RedisEventSubscriber) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.Subscribe(ctx, AuctionEventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", AuctionEventsChannel, err)
	}
	ch := pubsub.Channel()

	r.log.Info("Subscribed to auction events")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := parseEventData(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type,
					"auction_index", event.AuctionIndex, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func parseEventData(payload string) (*domain.AuctionEvent, error) {
	var event domain.AuctionEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	if event.Type == "" {
		return nil, fmt.Errorf("invalid event format: %s", payload)
	}
	return &event, nil
}
