package mysql

import (
	"context"
	"database/sql"

	"nft-marketplace/internal/domain"
)

type MySQLAuctionRepository struct {
	db *sql.DB
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

// SaveAuction upserts the full snapshot of an auction.
func (r *MySQLAuctionRepository) SaveAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (idx, asset_contract, asset_id, payment_contract, creator, initial_price,
            end_time, current_bid_owner, current_bid_amount, bid_count, status, asset_released,
            funds_released, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
            current_bid_owner = VALUES(current_bid_owner),
            current_bid_amount = VALUES(current_bid_amount),
            bid_count = VALUES(bid_count),
            status = VALUES(status),
            asset_released = VALUES(asset_released),
            funds_released = VALUES(funds_released),
            updated_at = VALUES(updated_at)
    `

	var bidOwner sql.NullString
	if auction.CurrentBidOwner != nil {
		bidOwner = sql.NullString{String: string(*auction.CurrentBidOwner), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		auction.Index, string(auction.AssetContract), uint64(auction.AssetID),
		string(auction.PaymentContract), string(auction.Creator), uint64(auction.InitialPrice),
		auction.EndTime, bidOwner, uint64(auction.CurrentBidAmount), auction.BidCount,
		int(auction.Status), auction.AssetReleased, auction.FundsReleased,
		auction.CreatedAt, auction.UpdatedAt)
	return err
}

func (r *MySQLAuctionRepository) ListAuctions(ctx context.Context) ([]*domain.Auction, error) {
	query := `
        SELECT idx, asset_contract, asset_id, payment_contract, creator, initial_price, end_time,
            current_bid_owner, current_bid_amount, bid_count, status, asset_released, funds_released,
            created_at, updated_at
        FROM auctions ORDER BY idx ASC
    `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		var auction domain.Auction
		var assetContract, paymentContract, creator string
		var bidOwner sql.NullString
		var assetID, initialPrice, currentBid uint64
		var status int

		err := rows.Scan(&auction.Index, &assetContract, &assetID, &paymentContract, &creator,
			&initialPrice, &auction.EndTime, &bidOwner, &currentBid, &auction.BidCount, &status,
			&auction.AssetReleased, &auction.FundsReleased, &auction.CreatedAt, &auction.UpdatedAt)
		if err != nil {
			return nil, err
		}

		auction.AssetContract = domain.ContractRef(assetContract)
		auction.PaymentContract = domain.ContractRef(paymentContract)
		auction.Creator = domain.Address(creator)
		auction.AssetID = domain.AssetID(assetID)
		auction.InitialPrice = domain.Amount(initialPrice)
		auction.CurrentBidAmount = domain.Amount(currentBid)
		auction.Status = domain.AuctionStatus(status)
		if bidOwner.Valid {
			owner := domain.Address(bidOwner.String)
			auction.CurrentBidOwner = &owner
		}
		auctions = append(auctions, &auction)
	}

	return auctions, rows.Err()
}
