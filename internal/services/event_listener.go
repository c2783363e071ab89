package services

import (
	"context"
	"fmt"
	"strconv"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"
)

// EventListener fans auction events out to websocket clients.
type EventListener struct {
	broadcaster       domain.AuctionBroadcaster
	userNotifier      domain.UserNotifier
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(connectionManager domain.ConnectionManager, broadcaster domain.AuctionBroadcaster,
	userNotifier domain.UserNotifier, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster:       broadcaster,
		userNotifier:      userNotifier,
		connectionManager: connectionManager,
		log:               log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, func(event *domain.AuctionEvent) error {
		return el.HandleAuctionEvent(ctx, event)
	})
}

func (el *EventListener) HandleAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	el.log.Info("Handling auction event", "type", event.Type, "auction_index", event.AuctionIndex)

	auctionID := strconv.FormatUint(event.AuctionIndex, 10)

	switch event.Type {
	case domain.EventAuctionCreated:
		return nil
	case domain.EventBidAccepted:
		return el.broadcaster.BroadcastToAuction(ctx, auctionID, map[string]interface{}{
			"type":          "bid_update",
			"auction_index": event.AuctionIndex,
			"current_bid":   event.Amount,
			"current_owner": event.Actor,
			"timestamp":     event.Timestamp,
		})
	case domain.EventBidRefunded:
		return el.userNotifier.NotifyUser(ctx, string(event.Actor), map[string]interface{}{
			"type":          "outbid",
			"auction_index": event.AuctionIndex,
			"refunded":      event.Amount,
			"outbid_by":     event.Counterparty,
			"timestamp":     event.Timestamp,
		})
	case domain.EventAuctionExpired:
		return el.broadcaster.BroadcastToAuction(ctx, auctionID, map[string]interface{}{
			"type":          "auction_ended",
			"auction_index": event.AuctionIndex,
			"timestamp":     event.Timestamp,
		})
	case domain.EventAuctionSettled, domain.EventAuctionRefunded:
		return el.handleAuctionClosed(ctx, auctionID, event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleAuctionClosed(ctx context.Context, auctionID string, event *domain.AuctionEvent) error {
	message := map[string]interface{}{
		"type":          string(event.Type),
		"auction_index": event.AuctionIndex,
		"timestamp":     event.Timestamp,
	}
	if event.Type == domain.EventAuctionSettled {
		message["winner"] = event.Counterparty
		message["final_bid"] = event.Amount
	}

	if err := el.broadcaster.BroadcastToAuction(ctx, auctionID, message); err != nil {
		el.log.Error("Failed to broadcast auction closed event", "error", err)
		return err
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(auctionID); err != nil {
		el.log.Error("Failed to finalize connections for auction", "auction_index",
			event.AuctionIndex, "error", err)
		return err
	}
	return nil
}
