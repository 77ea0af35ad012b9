package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/calc"
)

// Batch is the fully materialised state one cycle computes on.
// Computation components read only from a Batch and never call the store or the provider themselves.
type Batch struct {
	Now        time.Time
	Location   *time.Location
	Portfolios []*domain.Portfolio
	Assets     map[string]*domain.Asset

	// AssetOrder lists every asset referenced by a deal, in encounter order
	AssetOrder []string
	// Histories holds the trailing-year history of every asset fetched successfully
	Histories map[string][]domain.PricePoint
	// FetchErrors holds the provider failure of every asset that could not be fetched
	FetchErrors map[string]error
	// Rejected lists portfolios left out of the batch because their stored ledger is malformed
	Rejected []uuid.UUID
}

// History returns the trailing-year history of an asset, or the fetch error recorded for it
func (b *Batch) History(assetID string) ([]domain.PricePoint, error) {
	if err, failed := b.FetchErrors[assetID]; failed {
		return nil, err
	}
	h, ok := b.Histories[assetID]
	if !ok {
		return nil, &domain.ExternalFetchError{AssetID: assetID, Err: domain.ErrNotFound}
	}
	return h, nil
}

// Loader runs the fetch-and-join step that precedes every cycle
type Loader struct {
	LedgerRepo domain.LedgerRepository
	Prices     domain.PriceHistoryProvider
	Location   *time.Location
	Now        func() time.Time
	log        zerolog.Logger
}

// NewLoader creates a new Loader instance
func NewLoader(ledgerRepo domain.LedgerRepository, prices domain.PriceHistoryProvider, loc *time.Location, log zerolog.Logger) *Loader {
	if loc == nil {
		loc = time.UTC
	}
	return &Loader{
		LedgerRepo: ledgerRepo,
		Prices:     prices,
		Location:   loc,
		Now:        time.Now,
		log:        log.With().Str("component", "snapshot").Logger(),
	}
}

// Load reads every portfolio and the asset catalog. Portfolios failing validation are left out.
// When withHistory is set it also fetches
// the price history of each referenced asset, one asset at a time.
// A provider failure is recorded per asset and never fails the whole load.
func (l *Loader) Load(ctx context.Context, withHistory bool) (*Batch, error) {
	stored, err := l.LedgerRepo.ListPortfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	var rejected []uuid.UUID
	portfolios := make([]*domain.Portfolio, 0, len(stored))
	for _, p := range stored {
		if err := p.Validate(); err != nil {
			l.log.Warn().Err(err).Str("portfolio_id", p.ID.String()).Msg("Portfolio skipped, malformed ledger")
			rejected = append(rejected, p.ID)
			continue
		}
		portfolios = append(portfolios, p)
	}

	assets, err := l.LedgerRepo.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	batch := &Batch{
		Now:         l.Now().In(l.Location),
		Location:    l.Location,
		Portfolios:  portfolios,
		Assets:      assets,
		AssetOrder:  ReferencedAssets(portfolios),
		Histories:   make(map[string][]domain.PricePoint),
		FetchErrors: make(map[string]error),
		Rejected:    rejected,
	}

	if !withHistory {
		return batch, nil
	}

	for _, assetID := range batch.AssetOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		history, err := l.Prices.History(ctx, assetID)
		if err != nil {
			fetchErr := &domain.ExternalFetchError{AssetID: assetID, Err: err}
			batch.FetchErrors[assetID] = fetchErr
			l.log.Warn().Err(err).Str("asset_id", assetID).Msg("Price history unavailable")
			continue
		}
		batch.Histories[assetID] = calc.TrailingYear(history, batch.Now, l.Location)
	}

	l.log.Debug().
		Int("portfolios", len(portfolios)).
		Int("rejected", len(rejected)).
		Int("assets", len(batch.AssetOrder)).
		Int("fetch_errors", len(batch.FetchErrors)).
		Msg("Batch loaded")

	return batch, nil
}

// ReferencedAssets returns the distinct asset IDs referenced by any deal, in encounter order
func ReferencedAssets(portfolios []*domain.Portfolio) []string {
	seen := make(map[string]struct{})
	order := make([]string, 0)
	for _, p := range portfolios {
		for _, d := range p.Deals {
			if _, ok := seen[d.Asset.ID]; ok {
				continue
			}
			seen[d.Asset.ID] = struct{}{}
			order = append(order, d.Asset.ID)
		}
	}
	return order
}
