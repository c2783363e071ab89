package mysql

import (
	"context"
	"database/sql"
	"time"

	"nft-marketplace/internal/domain"

	"github.com/google/uuid"
)

type MySQLAuctionEventRepository struct {
	db *sql.DB
}

func NewMySQLAuctionEventRepository(db *sql.DB) *MySQLAuctionEventRepository {
	return &MySQLAuctionEventRepository{db: db}
}

// SaveAuctionEvent ignores redeliveries of an event id.
func (r *MySQLAuctionEventRepository) SaveAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	query := `
        INSERT IGNORE INTO auction_events (id, auction_index, event_type, actor, counterparty, amount, timestamp, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		event.ID.String(), event.AuctionIndex, string(event.Type), string(event.Actor),
		string(event.Counterparty), uint64(event.Amount), event.Timestamp, time.Now())
	return err
}

func (r *MySQLAuctionEventRepository) GetAuctionHistory(ctx context.Context, auctionIndex uint64) ([]*domain.AuctionEvent, error) {
	query := `
        SELECT id, auction_index, event_type, actor, counterparty, amount, timestamp
        FROM auction_events
        WHERE auction_index = ?
        ORDER BY timestamp ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuctionEvent
	for rows.Next() {
		var event domain.AuctionEvent
		var id, eventType, actor, counterparty string
		var amount uint64

		err := rows.Scan(&id, &event.AuctionIndex, &eventType, &actor, &counterparty,
			&amount, &event.Timestamp)
		if err != nil {
			return nil, err
		}

		if event.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		event.Type = domain.AuctionEventType(eventType)
		event.Actor = domain.Address(actor)
		event.Counterparty = domain.Address(counterparty)
		event.Amount = domain.Amount(amount)
		events = append(events, &event)
	}

	return events, rows.Err()
}
