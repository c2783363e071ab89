package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"nft-marketplace/internal/config"

	"github.com/go-sql-driver/mysql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
        idx BIGINT UNSIGNED NOT NULL PRIMARY KEY,
        asset_contract VARCHAR(128) NOT NULL,
        asset_id BIGINT UNSIGNED NOT NULL,
        payment_contract VARCHAR(128) NOT NULL,
        creator VARCHAR(128) NOT NULL,
        initial_price BIGINT UNSIGNED NOT NULL,
        end_time DATETIME(6) NOT NULL,
        current_bid_owner VARCHAR(128) NULL,
        current_bid_amount BIGINT UNSIGNED NOT NULL,
        bid_count BIGINT UNSIGNED NOT NULL DEFAULT 0,
        status TINYINT NOT NULL,
        asset_released BOOLEAN NOT NULL DEFAULT FALSE,
        funds_released BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME(6) NOT NULL,
        updated_at DATETIME(6) NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS auction_events (
        id CHAR(36) NOT NULL PRIMARY KEY,
        auction_index BIGINT UNSIGNED NOT NULL,
        event_type VARCHAR(32) NOT NULL,
        actor VARCHAR(128) NOT NULL,
        counterparty VARCHAR(128) NOT NULL DEFAULT '',
        amount BIGINT UNSIGNED NOT NULL,
        timestamp DATETIME(6) NOT NULL,
        created_at DATETIME(6) NOT NULL,
        INDEX idx_auction_events_auction (auction_index, timestamp)
    )`,
}

// Open connects with the pool settings from cfg. The DSN must ask the driver
// to parse DATETIME columns.
func Open(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsn.ParseTime = true

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
