package memory

import (
	"context"
	"sort"
	"sync"

	"nft-marketplace/internal/domain"
)

// AuctionRepository keeps auction snapshots in memory, keyed by index.
type AuctionRepository struct {
	auctions map[uint64]*domain.Auction
	mutex    sync.RWMutex
}

func NewAuctionRepository() *AuctionRepository {
	return &AuctionRepository{auctions: make(map[uint64]*domain.Auction)}
}

func (r *AuctionRepository) SaveAuction(ctx context.Context, auction *domain.Auction) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.auctions[auction.Index] = auction.Clone()
	return nil
}

func (r *AuctionRepository) ListAuctions(ctx context.Context) ([]*domain.Auction, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	auctions := make([]*domain.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		auctions = append(auctions, a.Clone())
	}
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].Index < auctions[j].Index })
	return auctions, nil
}
