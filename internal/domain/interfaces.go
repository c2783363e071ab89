package domain

import (
	"context"
	"time"
)

// AssetCustodyClient is an asset collection seen from the registry: every
// transfer is issued with the registry as the acting principal.
type AssetCustodyClient interface {
	OwnerOf(ctx context.Context, id AssetID) (Address, error)
	IsApprovedForTransfer(ctx context.Context, id AssetID, by Address) (bool, error)
	TransferCustody(ctx context.Context, id AssetID, from, to Address) error
}

// BalanceLedgerClient is a payment ledger seen from the registry.
type BalanceLedgerClient interface {
	BalanceOf(ctx context.Context, holder Address) (Amount, error)
	Allowance(ctx context.Context, holder, spender Address) (Amount, error)
	TransferFrom(ctx context.Context, payer, payee Address, amount Amount) error
	// Transfer pays out of the registry's own balance.
	Transfer(ctx context.Context, payee Address, amount Amount) error
}

// ContractResolver maps contract references to live clients.
type ContractResolver interface {
	AssetCustody(ref ContractRef) (AssetCustodyClient, bool)
	BalanceLedger(ref ContractRef) (BalanceLedgerClient, bool)
}

// AssetCollection is the full surface of a unique-asset contract. The caller
// argument is the principal issuing the call.
type AssetCollection interface {
	Mint(ctx context.Context, to Address, uri string) (AssetID, error)
	OwnerOf(ctx context.Context, id AssetID) (Address, error)
	TokenURI(ctx context.Context, id AssetID) (string, error)
	Approve(ctx context.Context, caller, to Address, id AssetID) error
	GetApproved(ctx context.Context, id AssetID) (Address, error)
	TransferFrom(ctx context.Context, caller, from, to Address, id AssetID) error
}

// TokenLedger is the full surface of a fungible-balance contract.
type TokenLedger interface {
	Mint(ctx context.Context, to Address, amount Amount) error
	BalanceOf(ctx context.Context, holder Address) (Amount, error)
	Allowance(ctx context.Context, holder, spender Address) (Amount, error)
	Approve(ctx context.Context, caller, spender Address, amount Amount) error
	Transfer(ctx context.Context, caller, to Address, amount Amount) error
	TransferFrom(ctx context.Context, spender, from, to Address, amount Amount) error
}

type Clock interface {
	Now() time.Time
}

// Repository interfaces
type AuctionRepository interface {
	SaveAuction(ctx context.Context, auction *Auction) error
	ListAuctions(ctx context.Context) ([]*Auction, error)
}

type AuctionEventRepository interface {
	SaveAuctionEvent(ctx context.Context, event *AuctionEvent) error
	GetAuctionHistory(ctx context.Context, auctionIndex uint64) ([]*AuctionEvent, error)
}

// Event interfaces
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	SubscribeToAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Notification interfaces
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID string, message interface{}) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	GetConnectionsForUser(userID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
