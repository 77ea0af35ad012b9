package domain

import (
	"context"

	"github.com/google/uuid"
)

// LedgerRepository defines the persistence operations the analytics engine needs
type LedgerRepository interface {
	// ListPortfolios retrieves every portfolio with its deals and holdings fully resolved
	ListPortfolios(ctx context.Context) ([]*Portfolio, error)

	// ListAssets retrieves the asset catalog keyed by asset ID
	ListAssets(ctx context.Context) (map[string]*Asset, error)

	// ListDeals retrieves every deal across all portfolios
	ListDeals(ctx context.Context) ([]Deal, error)

	// SaveProfit replaces the profit series of a portfolio
	SaveProfit(ctx context.Context, portfolioID uuid.UUID, series []ProfitPoint) error

	// SaveEvaluation closes the given deals and stores the portfolio success in one transaction.
	// Deals that are already closed are left untouched.
	SaveEvaluation(ctx context.Context, eval Evaluation) error

	// SaveRatings assigns rating numbers to all portfolios in one transaction
	SaveRatings(ctx context.Context, ratings []Rating) error

	// SaveConsensus replaces the per-asset forecast consensus in one transaction
	SaveConsensus(ctx context.Context, consensus []AssetConsensus) error
}

// PriceHistoryProvider defines the interface for the external price history source
type PriceHistoryProvider interface {
	// History returns the daily price samples of an asset, ordered by time
	History(ctx context.Context, assetID string) ([]PricePoint, error)
}

// AssetRepository defines the persistence operations of the asset catalog
type AssetRepository interface {
	// UpsertAssets inserts or refreshes catalog entries in one transaction
	UpsertAssets(ctx context.Context, assets []Asset) error
}

// MarketDataProvider defines the interface for the external market snapshot source
type MarketDataProvider interface {
	// Markets returns one page of assets with their current price, ordered by market cap
	Markets(ctx context.Context, page int) ([]Asset, error)
}
