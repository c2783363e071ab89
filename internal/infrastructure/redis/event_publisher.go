package redis

import (
	"context"
	"encoding/json"

	"nft-marketplace/internal/domain"

	"github.com/go-redis/redis/v8"
)

const AuctionEventsChannel = "auction_events"

type EventPublisherImpl struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client}
}

func (r *EventPublisherImpl) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, AuctionEventsChannel, payload).Err()
}
