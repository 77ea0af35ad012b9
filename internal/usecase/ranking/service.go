package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

// RankingService assigns rating numbers across all portfolios
type RankingService struct {
	LedgerRepo domain.LedgerRepository
	log        zerolog.Logger
}

// NewRankingService creates a new RankingService instance
func NewRankingService(ledgerRepo domain.LedgerRepository, log zerolog.Logger) *RankingService {
	return &RankingService{
		LedgerRepo: ledgerRepo,
		log:        log.With().Str("component", "ranking").Logger(),
	}
}

// Rank reads the latest persisted state of every portfolio, orders them and writes all
// rating numbers in a single store transaction.
func (s *RankingService) Rank(ctx context.Context) ([]domain.Rating, error) {
	portfolios, err := s.LedgerRepo.ListPortfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	ordered := Order(portfolios)
	ratings := Assign(ordered)
	if len(ratings) == 0 {
		return ratings, nil
	}

	if err := s.LedgerRepo.SaveRatings(ctx, ratings); err != nil {
		return nil, err
	}

	top := ordered[0]
	s.log.Info().
		Int("portfolios", len(ratings)).
		Str("top_portfolio", top.ID.String()).
		Str("top_profit", top.LatestProfit().String()).
		Msg("Ranking completed")

	return ratings, nil
}

// Order returns the portfolios sorted best first:
// latest profit value desc, then distinct holdings desc, then deal count desc, then input order.
// The input slice is not modified.
func Order(portfolios []*domain.Portfolio) []*domain.Portfolio {
	ordered := make([]*domain.Portfolio, len(portfolios))
	copy(ordered, portfolios)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if c := a.LatestProfit().Cmp(b.LatestProfit()); c != 0 {
			return c > 0
		}
		if ha, hb := a.DistinctHoldings(), b.DistinctHoldings(); ha != hb {
			return ha > hb
		}
		return len(a.Deals) > len(b.Deals)
	})
	return ordered
}

// Assign numbers an ordered list of portfolios from 1
func Assign(ordered []*domain.Portfolio) []domain.Rating {
	ratings := make([]domain.Rating, len(ordered))
	for i, p := range ordered {
		ratings[i] = domain.Rating{PortfolioID: p.ID, RatingNumber: i + 1}
	}
	return ratings
}
