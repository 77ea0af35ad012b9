package consensus

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/calc"
)

// forecastPlaces is the precision consensus values are stored with
const forecastPlaces = 2

// ConsensusService maintains the crowd forecast of every asset
type ConsensusService struct {
	LedgerRepo domain.LedgerRepository
	log        zerolog.Logger
}

// NewConsensusService creates a new ConsensusService instance
func NewConsensusService(ledgerRepo domain.LedgerRepository, log zerolog.Logger) *ConsensusService {
	return &ConsensusService{
		LedgerRepo: ledgerRepo,
		log:        log.With().Str("component", "consensus").Logger(),
	}
}

// Refresh recomputes the consensus of every catalog asset and every asset a deal refers to
func (s *ConsensusService) Refresh(ctx context.Context) ([]domain.AssetConsensus, error) {
	assets, err := s.LedgerRepo.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	deals, err := s.LedgerRepo.ListDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	assetIDs := make([]string, 0, len(assets))
	for id := range assets {
		assetIDs = append(assetIDs, id)
	}

	result := Compute(assetIDs, deals)
	if len(result) == 0 {
		return result, nil
	}

	if err := s.LedgerRepo.SaveConsensus(ctx, result); err != nil {
		return nil, err
	}

	s.log.Info().Int("assets", len(result)).Int("deals", len(deals)).Msg("Consensus refreshed")
	return result, nil
}

// Compute returns, for each asset, the mean forecast of its deals per horizon, ordered by asset ID.
// A horizon without deals yields zero.
func Compute(assetIDs []string, deals []domain.Deal) []domain.AssetConsensus {
	forecasts := make(map[string]map[domain.Horizon][]decimal.Decimal)
	for _, id := range assetIDs {
		forecasts[id] = make(map[domain.Horizon][]decimal.Decimal)
	}
	for _, d := range deals {
		byHorizon, ok := forecasts[d.Asset.ID]
		if !ok {
			byHorizon = make(map[domain.Horizon][]decimal.Decimal)
			forecasts[d.Asset.ID] = byHorizon
		}
		byHorizon[d.Horizon] = append(byHorizon[d.Horizon], d.Forecast)
	}

	result := make([]domain.AssetConsensus, 0, len(forecasts))
	for id, byHorizon := range forecasts {
		mean := func(h domain.Horizon) decimal.Decimal {
			return calc.Mean(byHorizon[h]).Round(forecastPlaces)
		}
		result = append(result, domain.AssetConsensus{
			AssetID: id,
			Week:    mean(domain.HorizonWeek),
			Month:   mean(domain.HorizonMonth),
			Quarter: mean(domain.HorizonQuarter),
			Year:    mean(domain.HorizonYear),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AssetID < result[j].AssetID
	})
	return result
}
