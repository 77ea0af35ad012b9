package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

// assetRepository implements domain.AssetRepository
type assetRepository struct {
	db *DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *DB) domain.AssetRepository {
	return &assetRepository{db: db}
}

// UpsertAssets inserts new catalog entries and refreshes the price of existing ones.
// Deal snapshots are separate columns on deals and are never touched here.
func (r *assetRepository) UpsertAssets(ctx context.Context, assets []domain.Asset) error {
	const op = "upsert assets"

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(op, uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO assets (id, symbol, logo, current_price, market_cap, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET symbol = EXCLUDED.symbol,
		    logo = EXCLUDED.logo,
		    current_price = EXCLUDED.current_price,
		    market_cap = EXCLUDED.market_cap,
		    updated_at = EXCLUDED.updated_at
	`

	for _, a := range assets {
		_, err := dbTx.ExecContext(ctx, query,
			a.ID,
			a.Symbol,
			a.Logo,
			a.CurrentPrice.String(),
			a.MarketCap.String(),
			a.UpdatedAt,
		)
		if err != nil {
			return persistenceError(op, uuid.Nil, fmt.Errorf("failed to upsert asset %s: %w", a.ID, err))
		}
	}

	if err := dbTx.Commit(); err != nil {
		return persistenceError(op, uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}
