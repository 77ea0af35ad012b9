package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

// Report summarises one catalog refresh
type Report struct {
	Fetched int
	Stored  int
	Invalid int
}

// CatalogService keeps the asset catalog's current prices up to date
type CatalogService struct {
	AssetRepo domain.AssetRepository
	Markets   domain.MarketDataProvider
	Pages     int
	Now       func() time.Time
	log       zerolog.Logger
}

// NewCatalogService creates a new CatalogService instance
func NewCatalogService(assetRepo domain.AssetRepository, markets domain.MarketDataProvider, pages int, log zerolog.Logger) *CatalogService {
	if pages < 1 {
		pages = 1
	}
	return &CatalogService{
		AssetRepo: assetRepo,
		Markets:   markets,
		Pages:     pages,
		Now:       time.Now,
		log:       log.With().Str("component", "catalog").Logger(),
	}
}

// Refresh pulls the market snapshot page by page and upserts it into the catalog.
// A failure on the first page fails the refresh; a failure on a later page keeps what was fetched so far.
// Entries without a positive price are dropped.
func (s *CatalogService) Refresh(ctx context.Context) (*Report, error) {
	report := &Report{}
	seen := make(map[string]struct{})
	var assets []domain.Asset

	for page := 1; page <= s.Pages; page++ {
		batch, err := s.Markets.Markets(ctx, page)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("failed to fetch market snapshot: %w", err)
			}
			s.log.Warn().Err(err).Int("page", page).Msg("Market snapshot truncated")
			break
		}
		if len(batch) == 0 {
			break
		}

		for _, a := range batch {
			report.Fetched++
			if _, dup := seen[a.ID]; dup {
				continue
			}
			if err := a.Validate(); err != nil {
				s.log.Debug().Err(err).Str("asset_id", a.ID).Msg("Catalog entry rejected")
				report.Invalid++
				continue
			}
			if a.UpdatedAt.IsZero() {
				a.UpdatedAt = s.Now()
			}
			seen[a.ID] = struct{}{}
			assets = append(assets, a)
		}
	}

	if len(assets) == 0 {
		return report, nil
	}

	if err := s.AssetRepo.UpsertAssets(ctx, assets); err != nil {
		return nil, err
	}
	report.Stored = len(assets)

	s.log.Info().
		Int("fetched", report.Fetched).
		Int("stored", report.Stored).
		Int("invalid", report.Invalid).
		Msg("Asset catalog refreshed")

	return report, nil
}
