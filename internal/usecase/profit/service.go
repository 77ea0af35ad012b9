package profit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/calc"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/snapshot"
)

// ratioPlaces is the precision a profit point is stored with
const ratioPlaces = 1

// Report summarises one rebuild cycle
type Report struct {
	Updated int
	Skipped []uuid.UUID // portfolios left untouched because a price history was unavailable
	Failed  []uuid.UUID // portfolios whose series could not be written
}

// ProfitService rebuilds the profit curve of every portfolio
type ProfitService struct {
	LedgerRepo domain.LedgerRepository
	log        zerolog.Logger
}

// NewProfitService creates a new ProfitService instance
func NewProfitService(ledgerRepo domain.LedgerRepository, log zerolog.Logger) *ProfitService {
	return &ProfitService{
		LedgerRepo: ledgerRepo,
		log:        log.With().Str("component", "profit").Logger(),
	}
}

// Rebuild recomputes and replaces the profit series of each portfolio in the batch.
// A portfolio missing any price history it needs keeps its previous series.
// A failure on one portfolio never stops the others.
func (s *ProfitService) Rebuild(ctx context.Context, batch *snapshot.Batch) (*Report, error) {
	report := &Report{}

	index := calc.NewPriceIndex(batch.Location)
	for assetID, history := range batch.Histories {
		index.Add(assetID, history)
	}

	for _, p := range batch.Portfolios {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		axis, err := axisFor(p, batch)
		if err != nil {
			s.log.Warn().Err(err).Str("portfolio_id", p.ID.String()).Msg("Profit rebuild skipped")
			report.Skipped = append(report.Skipped, p.ID)
			continue
		}

		series := BuildSeries(p.Deals, axis, index)

		if err := s.LedgerRepo.SaveProfit(ctx, p.ID, series); err != nil {
			s.log.Error().Err(err).Str("portfolio_id", p.ID.String()).Msg("Failed to save profit series")
			report.Failed = append(report.Failed, p.ID)
			continue
		}
		p.Profit = series
		report.Updated++
	}

	return report, nil
}

// axisFor selects the reference history whose dates become the portfolio's axis and
// makes sure every asset the computation needs was fetched.
func axisFor(p *domain.Portfolio, batch *snapshot.Batch) ([]domain.PricePoint, error) {
	needed := neededAssets(p)

	for _, assetID := range needed {
		if _, err := batch.History(assetID); err != nil {
			return nil, err
		}
	}

	if len(needed) > 0 {
		return batch.History(needed[0])
	}

	// No deals: borrow the first asset of the batch that has a history.
	// When every borrowable history failed the portfolio is skipped like any other fetch failure.
	var firstErr error
	for _, assetID := range batch.AssetOrder {
		h, err := batch.History(assetID)
		if err == nil {
			return h, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// neededAssets returns the reference asset (the first one in the ledger) followed by every
// other asset bought by the portfolio.
func neededAssets(p *domain.Portfolio) []string {
	if len(p.Deals) == 0 {
		return nil
	}
	seen := map[string]struct{}{p.Deals[0].Asset.ID: {}}
	needed := []string{p.Deals[0].Asset.ID}
	for _, d := range p.Deals {
		if !d.IsBuy() {
			continue
		}
		if _, ok := seen[d.Asset.ID]; ok {
			continue
		}
		seen[d.Asset.ID] = struct{}{}
		needed = append(needed, d.Asset.ID)
	}
	return needed
}

// BuildSeries computes a profit point for each axis date.
// For date d the window is [axis[0], d]; the value is the buy cost of the buy deals created in the
// window divided by their value at d's prices, rounded to one decimal. An undefined ratio is 0.
// The axis is expected ascending and unique per day.
func BuildSeries(deals []domain.Deal, axis []domain.PricePoint, prices *calc.PriceIndex) []domain.ProfitPoint {
	series := make([]domain.ProfitPoint, 0, len(axis))
	if len(axis) == 0 {
		return series
	}
	start := axis[0].Time

	for _, sample := range axis {
		series = append(series, domain.ProfitPoint{
			Date:  sample.Time,
			Value: ratioAt(deals, start, sample.Time, prices),
		})
	}
	return series
}

func ratioAt(deals []domain.Deal, start, at time.Time, prices *calc.PriceIndex) decimal.Decimal {
	buyCost := decimal.Zero
	currentValue := decimal.Zero

	for _, d := range deals {
		if !d.IsBuy() || !calc.WithinInterval(d.CreatedAt, start, at) {
			continue
		}
		price, ok := prices.PriceOn(d.Asset.ID, at)
		if !ok {
			return decimal.Zero
		}
		buyCost = buyCost.Add(d.Sum)
		currentValue = currentValue.Add(d.Count.Mul(price))
	}

	return calc.Ratio(buyCost, currentValue, ratioPlaces)
}
