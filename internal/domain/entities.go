package domain

import (
	"time"

	"github.com/google/uuid"
)

// Address identifies a principal: a user, the registry itself, or any other holder.
type Address string

// ContractRef names an asset collection or payment ledger.
type ContractRef string

type AssetID uint64

type Amount uint64

type Auction struct {
	Index           uint64
	AssetContract   ContractRef
	AssetID         AssetID
	PaymentContract ContractRef
	Creator         Address
	InitialPrice    Amount
	EndTime         time.Time

	// CurrentBidOwner is nil until the first accepted bid.
	CurrentBidOwner  *Address
	CurrentBidAmount Amount
	BidCount         uint64

	Status        AuctionStatus
	AssetReleased bool
	FundsReleased bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settled reports whether the auction reached a terminal status.
func (a *Auction) Settled() bool {
	return a.Status == AuctionSettled || a.Status == AuctionRefunded
}

func (a *Auction) HasBid() bool {
	return a.BidCount > 0 && a.CurrentBidOwner != nil
}

// Ended reports whether bidding is closed at now.
func (a *Auction) Ended(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.CurrentBidOwner != nil {
		owner := *a.CurrentBidOwner
		c.CurrentBidOwner = &owner
	}
	return &c
}

type AuctionStatus int

const (
	AuctionOpen AuctionStatus = iota
	AuctionSettling
	AuctionSettled
	AuctionRefunded
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionOpen:
		return "open"
	case AuctionSettling:
		return "settling"
	case AuctionSettled:
		return "settled"
	case AuctionRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

type AuctionEvent struct {
	ID           uuid.UUID        `json:"id"`
	Type         AuctionEventType `json:"type"`
	AuctionIndex uint64           `json:"auction_index"`
	Actor        Address          `json:"actor"`
	Counterparty Address          `json:"counterparty,omitempty"`
	Amount       Amount           `json:"amount"`
	Timestamp    time.Time        `json:"timestamp"`
}

type AuctionEventType string

const (
	EventAuctionCreated  AuctionEventType = "auction_created"
	EventBidAccepted     AuctionEventType = "bid_accepted"
	EventBidRefunded     AuctionEventType = "bid_refunded"
	EventAuctionExpired  AuctionEventType = "auction_expired"
	EventAuctionSettled  AuctionEventType = "auction_settled"
	EventAuctionRefunded AuctionEventType = "auction_refunded"
)

// NewAuctionEvent stamps a fresh event id.
func NewAuctionEvent(eventType AuctionEventType, index uint64, actor Address, amount Amount, at time.Time) *AuctionEvent {
	return &AuctionEvent{
		ID:           uuid.New(),
		Type:         eventType,
		AuctionIndex: index,
		Actor:        actor,
		Amount:       amount,
		Timestamp:    at,
	}
}
