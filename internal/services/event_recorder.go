package services

import (
	"context"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"
)

// EventRecorder appends every auction event to the history store.
type EventRecorder struct {
	repo domain.AuctionEventRepository
	log  logger.Logger
}

func NewEventRecorder(repo domain.AuctionEventRepository, log logger.Logger) *EventRecorder {
	return &EventRecorder{
		repo: repo,
		log:  log,
	}
}

func (er *EventRecorder) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	er.log.Info("Starting event recorder")

	return subscriber.SubscribeToAuctionEvents(ctx, func(event *domain.AuctionEvent) error {
		return er.Record(ctx, event)
	})
}

func (er *EventRecorder) Record(ctx context.Context, event *domain.AuctionEvent) error {
	er.log.Debug("Storing auction event", "type", event.Type, "auction_index", event.AuctionIndex,
		"actor", event.Actor, "amount", event.Amount)
	return er.repo.SaveAuctionEvent(ctx, event)
}
