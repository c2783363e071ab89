package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nft-marketplace/internal/domain"
	"nft-marketplace/pkg/logger"
)

type RegistryConfig struct {
	Name string
	// Address is the registry's own principal on every collaborator.
	Address              domain.Address
	MinDuration          time.Duration
	RefundRequiresExpiry bool
}

// AuctionRegistry escrows assets and bids. Every public operation runs as a
// single unit under mutex; auctions live in an append-only arena indexed by
// their sequence number.
type AuctionRegistry struct {
	cfg       RegistryConfig
	contracts domain.ContractResolver
	repo      domain.AuctionRepository
	eventPub  domain.EventPublisher
	clock     domain.Clock
	auctions  []*domain.Auction
	mutex     sync.RWMutex
	log       logger.Logger
}

func NewAuctionRegistry(
	cfg RegistryConfig,
	contracts domain.ContractResolver,
	repo domain.AuctionRepository,
	eventPub domain.EventPublisher,
	clock domain.Clock,
	log logger.Logger,
) *AuctionRegistry {
	return &AuctionRegistry{
		cfg:       cfg,
		contracts: contracts,
		repo:      repo,
		eventPub:  eventPub,
		clock:     clock,
		log:       log,
	}
}

func (r *AuctionRegistry) Name() string {
	return r.cfg.Name
}

func (r *AuctionRegistry) Address() domain.Address {
	return r.cfg.Address
}

// Restore reloads the arena from the repository. It must run before the
// registry serves any operation.
func (r *AuctionRegistry) Restore(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	auctions, err := r.repo.ListAuctions(ctx)
	if err != nil {
		return fmt.Errorf("list auctions: %w", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	arena := make([]*domain.Auction, 0, len(auctions))
	for i, a := range auctions {
		if a.Index != uint64(i) {
			return fmt.Errorf("auction arena has a gap: expected index %d, got %d", i, a.Index)
		}
		arena = append(arena, a.Clone())
	}
	r.auctions = arena

	r.log.Info("Auction registry restored", "auctions", len(arena))
	return nil
}

func (r *AuctionRegistry) CreateAuction(
	ctx context.Context,
	caller domain.Address,
	assetContract, paymentContract domain.ContractRef,
	assetID domain.AssetID,
	initialPrice domain.Amount,
	endTime time.Time,
) (uint64, error) {
	r.log.Info("Creating auction", "caller", caller, "asset_contract", assetContract,
		"asset_id", assetID, "initial_price", initialPrice, "end_time", endTime)

	r.mutex.Lock()
	index, event, err := r.createAuction(ctx, caller, assetContract, paymentContract, assetID, initialPrice, endTime)
	r.mutex.Unlock()

	if err != nil {
		r.log.Warn("Auction creation rejected", "caller", caller, "asset_id", assetID, "error", err)
		return 0, err
	}
	r.publish(ctx, event)
	return index, nil
}

func (r *AuctionRegistry) createAuction(
	ctx context.Context,
	caller domain.Address,
	assetContract, paymentContract domain.ContractRef,
	assetID domain.AssetID,
	initialPrice domain.Amount,
	endTime time.Time,
) (uint64, *domain.AuctionEvent, error) {
	assets, ok := r.contracts.AssetCustody(assetContract)
	if !ok {
		return 0, nil, domain.ErrInvalidAssetContract
	}
	if _, ok := r.contracts.BalanceLedger(paymentContract); !ok {
		return 0, nil, domain.ErrInvalidPaymentContract
	}

	now := r.clock.Now()
	if endTime.Before(now.Add(r.cfg.MinDuration)) {
		return 0, nil, domain.ErrInvalidEndTime
	}
	if initialPrice == 0 {
		return 0, nil, domain.ErrInvalidInitialPrice
	}

	owner, err := assets.OwnerOf(ctx, assetID)
	if err != nil {
		return 0, nil, fmt.Errorf("look up asset owner: %w", err)
	}
	if owner != caller {
		return 0, nil, domain.ErrNotAssetOwner
	}
	approved, err := assets.IsApprovedForTransfer(ctx, assetID, caller)
	if err != nil {
		return 0, nil, fmt.Errorf("check transfer approval: %w", err)
	}
	if !approved {
		return 0, nil, domain.ErrTransferNotApproved
	}

	if err := assets.TransferCustody(ctx, assetID, caller, r.cfg.Address); err != nil {
		return 0, nil, fmt.Errorf("pull asset into escrow: %w", err)
	}

	auction := &domain.Auction{
		Index:            uint64(len(r.auctions)),
		AssetContract:    assetContract,
		AssetID:          assetID,
		PaymentContract:  paymentContract,
		Creator:          caller,
		InitialPrice:     initialPrice,
		EndTime:          endTime,
		CurrentBidAmount: initialPrice,
		Status:           domain.AuctionOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.auctions = append(r.auctions, auction)
	r.persist(ctx, auction)

	r.log.Info("Auction created", "auction_index", auction.Index, "creator", caller, "asset_id", assetID)
	return auction.Index, domain.NewAuctionEvent(domain.EventAuctionCreated, auction.Index, caller, initialPrice, now), nil
}

func (r *AuctionRegistry) Bid(ctx context.Context, caller domain.Address, index uint64, amount domain.Amount) error {
	r.log.Info("Placing bid", "auction_index", index, "caller", caller, "amount", amount)

	r.mutex.Lock()
	events, err := r.bid(ctx, caller, index, amount)
	r.mutex.Unlock()

	if err != nil {
		r.log.Warn("Bid rejected", "auction_index", index, "caller", caller, "amount", amount, "error", err)
		return err
	}
	r.publish(ctx, events...)
	return nil
}

func (r *AuctionRegistry) bid(ctx context.Context, caller domain.Address, index uint64, amount domain.Amount) ([]*domain.AuctionEvent, error) {
	a, err := r.get(index)
	if err != nil {
		return nil, err
	}
	if a.Settled() {
		return nil, domain.ErrAlreadySettled
	}

	now := r.clock.Now()
	if a.Ended(now) {
		return nil, domain.ErrAuctionEnded
	}
	if caller == a.Creator {
		return nil, domain.ErrCreatorCannotBid
	}
	if amount <= a.CurrentBidAmount {
		return nil, domain.ErrBidTooLow
	}

	ledger, ok := r.contracts.BalanceLedger(a.PaymentContract)
	if !ok {
		return nil, domain.ErrInvalidPaymentContract
	}
	allowance, err := ledger.Allowance(ctx, caller, r.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("read allowance: %w", err)
	}
	if allowance < amount {
		return nil, domain.ErrInsufficientAllowance
	}

	if err := ledger.TransferFrom(ctx, caller, r.cfg.Address, amount); err != nil {
		return nil, fmt.Errorf("pull bid into escrow: %w", err)
	}

	events := []*domain.AuctionEvent{domain.NewAuctionEvent(domain.EventBidAccepted, index, caller, amount, now)}

	if a.HasBid() {
		previousOwner, previousAmount := *a.CurrentBidOwner, a.CurrentBidAmount
		if err := ledger.Transfer(ctx, previousOwner, previousAmount); err != nil {
			if undoErr := ledger.Transfer(ctx, caller, amount); undoErr != nil {
				r.log.Error("Failed to return bid after refund failure, escrow holds unassigned funds",
					"auction_index", index, "caller", caller, "amount", amount, "error", undoErr)
				return nil, fmt.Errorf("refund previous bidder: %w (returning bid failed: %w)", err, undoErr)
			}
			return nil, fmt.Errorf("refund previous bidder: %w", err)
		}

		refunded := domain.NewAuctionEvent(domain.EventBidRefunded, index, previousOwner, previousAmount, now)
		refunded.Counterparty = caller
		events = append(events, refunded)
	}

	owner := caller
	a.CurrentBidOwner = &owner
	a.CurrentBidAmount = amount
	a.BidCount++
	a.UpdatedAt = now
	r.persist(ctx, a)

	r.log.Info("Bid accepted", "auction_index", index, "caller", caller, "amount", amount, "bid_count", a.BidCount)
	return events, nil
}

type claimPath string

const (
	claimAssetPath claimPath = "claim_asset"
	claimFundsPath claimPath = "claim_funds"
)

// ClaimAsset lets the winning bidder settle the auction after expiry.
func (r *AuctionRegistry) ClaimAsset(ctx context.Context, caller domain.Address, index uint64) error {
	return r.claim(ctx, caller, index, claimAssetPath)
}

// ClaimFunds lets the creator settle the auction after expiry.
func (r *AuctionRegistry) ClaimFunds(ctx context.Context, caller domain.Address, index uint64) error {
	return r.claim(ctx, caller, index, claimFundsPath)
}

func (r *AuctionRegistry) claim(ctx context.Context, caller domain.Address, index uint64, path claimPath) error {
	r.log.Info("Claiming auction", "auction_index", index, "caller", caller, "path", path)

	r.mutex.Lock()
	event, err := r.settle(ctx, caller, index, path)
	r.mutex.Unlock()

	if err != nil {
		r.log.Warn("Claim rejected", "auction_index", index, "caller", caller, "path", path, "error", err)
		return err
	}
	r.publish(ctx, event)
	return nil
}

// settle runs both legs: funds to the creator, then the asset to the winner.
// A committed leg is recorded immediately, so a retry after a failed second
// leg only executes what is missing.
func (r *AuctionRegistry) settle(ctx context.Context, caller domain.Address, index uint64, path claimPath) (*domain.AuctionEvent, error) {
	a, err := r.get(index)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	if !a.Ended(now) {
		return nil, domain.ErrAuctionOpen
	}

	switch path {
	case claimAssetPath:
		if !a.HasBid() || *a.CurrentBidOwner != caller {
			return nil, domain.ErrNotWinner
		}
	case claimFundsPath:
		if caller != a.Creator {
			return nil, domain.ErrNotCreator
		}
		if !a.HasBid() {
			return nil, domain.ErrNoBids
		}
	}
	if a.Settled() {
		return nil, domain.ErrAlreadySettled
	}

	assets, ok := r.contracts.AssetCustody(a.AssetContract)
	if !ok {
		return nil, domain.ErrInvalidAssetContract
	}
	ledger, ok := r.contracts.BalanceLedger(a.PaymentContract)
	if !ok {
		return nil, domain.ErrInvalidPaymentContract
	}
	winner := *a.CurrentBidOwner

	if !a.AssetReleased {
		holder, err := assets.OwnerOf(ctx, a.AssetID)
		if err != nil {
			return nil, fmt.Errorf("look up escrowed asset: %w", err)
		}
		if holder != r.cfg.Address {
			return nil, fmt.Errorf("asset %d is held by %s: %w", a.AssetID, holder, domain.ErrCustodyTransferRejected)
		}
	}

	if !a.FundsReleased {
		if err := ledger.Transfer(ctx, a.Creator, a.CurrentBidAmount); err != nil {
			return nil, fmt.Errorf("release funds to creator: %w", err)
		}
		a.FundsReleased = true
		a.Status = domain.AuctionSettling
		a.UpdatedAt = now
		r.persist(ctx, a)
	}

	if !a.AssetReleased {
		if err := assets.TransferCustody(ctx, a.AssetID, r.cfg.Address, winner); err != nil {
			return nil, fmt.Errorf("release asset to winner: %w", err)
		}
		a.AssetReleased = true
	}

	a.Status = domain.AuctionSettled
	a.UpdatedAt = now
	r.persist(ctx, a)

	r.log.Info("Auction settled", "auction_index", index, "winner", winner,
		"creator", a.Creator, "amount", a.CurrentBidAmount, "path", path)

	event := domain.NewAuctionEvent(domain.EventAuctionSettled, index, caller, a.CurrentBidAmount, now)
	event.Counterparty = winner
	return event, nil
}

// Refund returns an unsold asset to its creator.
func (r *AuctionRegistry) Refund(ctx context.Context, caller domain.Address, index uint64) error {
	r.log.Info("Refunding auction", "auction_index", index, "caller", caller)

	r.mutex.Lock()
	event, err := r.refund(ctx, caller, index)
	r.mutex.Unlock()

	if err != nil {
		r.log.Warn("Refund rejected", "auction_index", index, "caller", caller, "error", err)
		return err
	}
	r.publish(ctx, event)
	return nil
}

func (r *AuctionRegistry) refund(ctx context.Context, caller domain.Address, index uint64) (*domain.AuctionEvent, error) {
	a, err := r.get(index)
	if err != nil {
		return nil, err
	}
	if a.BidCount > 0 {
		return nil, domain.ErrExistingBid
	}
	if caller != a.Creator {
		return nil, domain.ErrNotCreator
	}
	if a.Settled() {
		return nil, domain.ErrAlreadySettled
	}

	now := r.clock.Now()
	if r.cfg.RefundRequiresExpiry && !a.Ended(now) {
		return nil, domain.ErrAuctionOpen
	}

	assets, ok := r.contracts.AssetCustody(a.AssetContract)
	if !ok {
		return nil, domain.ErrInvalidAssetContract
	}
	if err := assets.TransferCustody(ctx, a.AssetID, r.cfg.Address, a.Creator); err != nil {
		return nil, fmt.Errorf("return asset to creator: %w", err)
	}

	a.AssetReleased = true
	a.Status = domain.AuctionRefunded
	a.UpdatedAt = now
	r.persist(ctx, a)

	r.log.Info("Auction refunded", "auction_index", index, "creator", caller)
	return domain.NewAuctionEvent(domain.EventAuctionRefunded, index, caller, 0, now), nil
}

func (r *AuctionRegistry) AuctionCount() uint64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return uint64(len(r.auctions))
}

func (r *AuctionRegistry) CurrentBid(index uint64) (domain.Amount, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	a, err := r.get(index)
	if err != nil {
		return 0, err
	}
	return a.CurrentBidAmount, nil
}

// CurrentBidOwner reports the highest bidder; ok is false before the first bid.
func (r *AuctionRegistry) CurrentBidOwner(index uint64) (owner domain.Address, ok bool, err error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	a, err := r.get(index)
	if err != nil {
		return "", false, err
	}
	if a.CurrentBidOwner == nil {
		return "", false, nil
	}
	return *a.CurrentBidOwner, true, nil
}

// Auction returns a copy of the record at index.
func (r *AuctionRegistry) Auction(index uint64) (*domain.Auction, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	a, err := r.get(index)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// ExpiredUnsettled lists auctions past their end time that nobody settled yet.
func (r *AuctionRegistry) ExpiredUnsettled(now time.Time) []uint64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var indices []uint64
	for _, a := range r.auctions {
		if a.Ended(now) && !a.Settled() {
			indices = append(indices, a.Index)
		}
	}
	return indices
}

func (r *AuctionRegistry) get(index uint64) (*domain.Auction, error) {
	if index >= uint64(len(r.auctions)) {
		return nil, domain.ErrAuctionNotFound
	}
	return r.auctions[index], nil
}

// persist snapshots a committed record. Collaborator transfers are already
// final at this point, so a failed write is logged, not rolled back.
func (r *AuctionRegistry) persist(ctx context.Context, a *domain.Auction) {
	if r.repo == nil {
		return
	}
	if err := r.repo.SaveAuction(ctx, a); err != nil {
		r.log.Error("Failed to persist auction", "auction_index", a.Index, "status", a.Status.String(), "error", err)
	}
}

func (r *AuctionRegistry) publish(ctx context.Context, events ...*domain.AuctionEvent) {
	if r.eventPub == nil {
		return
	}
	for _, event := range events {
		if event == nil {
			continue
		}
		if err := r.eventPub.PublishAuctionEvent(ctx, event); err != nil {
			r.log.Error("Failed to publish auction event", "type", event.Type,
				"auction_index", event.AuctionIndex, "error", err)
		}
	}
}
