package maturity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/calc"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/snapshot"
)

// Report summarises one evaluation cycle
type Report struct {
	Evaluated int
	Closed    int
	Failed    []uuid.UUID
}

// MaturityService closes due deals and recomputes portfolio success
type MaturityService struct {
	LedgerRepo domain.LedgerRepository
	log        zerolog.Logger
}

// NewMaturityService creates a new MaturityService instance
func NewMaturityService(ledgerRepo domain.LedgerRepository, log zerolog.Logger) *MaturityService {
	return &MaturityService{
		LedgerRepo: ledgerRepo,
		log:        log.With().Str("component", "maturity").Logger(),
	}
}

// Evaluate runs the maturity rules over every portfolio of the batch.
// The in-memory portfolio is only updated once its evaluation has been stored,
// so a failed write leaves it exactly as loaded.
func (s *MaturityService) Evaluate(ctx context.Context, batch *snapshot.Batch) (*Report, error) {
	report := &Report{}

	for _, p := range batch.Portfolios {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		eval, missing := EvaluatePortfolio(p, batch.Assets, batch.Now, batch.Location)
		for _, assetID := range missing {
			s.log.Warn().
				Str("portfolio_id", p.ID.String()).
				Str("asset_id", assetID).
				Msg("No current price, due deal left open")
		}

		if err := s.LedgerRepo.SaveEvaluation(ctx, eval); err != nil {
			s.log.Error().Err(err).Str("portfolio_id", p.ID.String()).Msg("Failed to save evaluation")
			report.Failed = append(report.Failed, p.ID)
			continue
		}

		apply(p, eval)
		report.Evaluated++
		report.Closed += len(eval.Closed)
	}

	return report, nil
}

// EvaluatePortfolio determines which open deals are due, scores them, and computes the
// resulting success percentage. It does not modify p.
// The second result lists assets whose current price was unknown or not positive; their due deals stay open.
func EvaluatePortfolio(p *domain.Portfolio, assets map[string]*domain.Asset, now time.Time, loc *time.Location) (domain.Evaluation, []string) {
	eval := domain.Evaluation{PortfolioID: p.ID}
	var missing []string

	succeeded := 0
	for _, d := range p.Deals {
		if d.Closed {
			if d.Succeeded {
				succeeded++
			}
			continue
		}
		if !IsDue(d, now, loc) {
			continue
		}

		asset, ok := assets[d.Asset.ID]
		if !ok || asset == nil || !asset.CurrentPrice.IsPositive() {
			// a catalog row the refresh has not priced yet counts as unknown
			missing = append(missing, d.Asset.ID)
			continue
		}

		ok = Succeeded(d, asset)
		if ok {
			succeeded++
		}
		eval.Closed = append(eval.Closed, domain.ClosedDeal{DealID: d.ID, Succeeded: ok})
	}

	// The denominator is every deal of the portfolio, matured or not.
	eval.Success = calc.Percent(succeeded, len(p.Deals))
	return eval, missing
}

// IsDue reports whether an open deal has reached its horizon
func IsDue(d domain.Deal, now time.Time, loc *time.Location) bool {
	if d.Closed {
		return false
	}
	return calc.HorizonElapsed(d.Horizon, d.CreatedAt, now, loc)
}

// Succeeded reports whether the deal's forecast held against the asset's current price
func Succeeded(d domain.Deal, asset *domain.Asset) bool {
	switch {
	case d.Forecast.IsPositive():
		return asset.CurrentPrice.GreaterThanOrEqual(d.Asset.Price)
	case d.Forecast.IsNegative():
		return asset.CurrentPrice.LessThan(d.Asset.Price)
	}
	return false
}

func apply(p *domain.Portfolio, eval domain.Evaluation) {
	outcome := make(map[uuid.UUID]bool, len(eval.Closed))
	for _, c := range eval.Closed {
		outcome[c.DealID] = c.Succeeded
	}
	for i := range p.Deals {
		if ok, closed := outcome[p.Deals[i].ID]; closed {
			p.Deals[i].Close(ok)
		}
	}
	p.Success = eval.Success
}
