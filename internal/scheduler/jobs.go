package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/catalog"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/consensus"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/maturity"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/profit"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/ranking"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/snapshot"
)

// Job names
const (
	JobCatalog   = "catalog"
	JobProfit    = "profit"
	JobMaturity  = "maturity"
	JobRanking   = "ranking"
	JobConsensus = "consensus"
)

// ProfitJob rebuilds the profit curve of every portfolio
type ProfitJob struct {
	log     zerolog.Logger
	round   *Round
	loader  *snapshot.Loader
	service *profit.ProfitService
}

// NewProfitJob creates a new ProfitJob
func NewProfitJob(round *Round, loader *snapshot.Loader, service *profit.ProfitService, log zerolog.Logger) *ProfitJob {
	return &ProfitJob{
		log:     log.With().Str("job", JobProfit).Logger(),
		round:   round,
		loader:  loader,
		service: service,
	}
}

// Name returns the job name
func (j *ProfitJob) Name() string {
	return JobProfit
}

// Run executes the profit cycle
func (j *ProfitJob) Run(ctx context.Context) error {
	return j.round.Stage(JobProfit, func() error {
		start := time.Now()

		batch, err := j.loader.Load(ctx, true)
		if err != nil {
			return fmt.Errorf("failed to load batch: %w", err)
		}

		report, err := j.service.Rebuild(ctx, batch)
		if err != nil {
			return err
		}

		j.log.Info().
			Int("updated", report.Updated).
			Int("skipped", len(report.Skipped)).
			Int("failed", len(report.Failed)).
			Dur("duration", time.Since(start)).
			Msg("Profit cycle finished")
		return nil
	})
}

// MaturityJob closes due deals and recomputes success
type MaturityJob struct {
	log     zerolog.Logger
	round   *Round
	loader  *snapshot.Loader
	service *maturity.MaturityService
}

// NewMaturityJob creates a new MaturityJob
func NewMaturityJob(round *Round, loader *snapshot.Loader, service *maturity.MaturityService, log zerolog.Logger) *MaturityJob {
	return &MaturityJob{
		log:     log.With().Str("job", JobMaturity).Logger(),
		round:   round,
		loader:  loader,
		service: service,
	}
}

// Name returns the job name
func (j *MaturityJob) Name() string {
	return JobMaturity
}

// Run executes the maturity cycle
func (j *MaturityJob) Run(ctx context.Context) error {
	return j.round.Stage(JobMaturity, func() error {
		start := time.Now()

		batch, err := j.loader.Load(ctx, false)
		if err != nil {
			return fmt.Errorf("failed to load batch: %w", err)
		}

		report, err := j.service.Evaluate(ctx, batch)
		if err != nil {
			return err
		}

		j.log.Info().
			Int("evaluated", report.Evaluated).
			Int("closed", report.Closed).
			Int("failed", len(report.Failed)).
			Dur("duration", time.Since(start)).
			Msg("Maturity cycle finished")
		return nil
	})
}

// RankingJob renumbers all portfolios once the producer stages of the round are done
type RankingJob struct {
	log     zerolog.Logger
	round   *Round
	service *ranking.RankingService
}

// NewRankingJob creates a new RankingJob
func NewRankingJob(round *Round, service *ranking.RankingService, log zerolog.Logger) *RankingJob {
	return &RankingJob{
		log:     log.With().Str("job", JobRanking).Logger(),
		round:   round,
		service: service,
	}
}

// Name returns the job name
func (j *RankingJob) Name() string {
	return JobRanking
}

// Run executes the ranking cycle.
// It returns domain.ErrJobDeferred when profit and maturity have not both completed since the last ranking.
func (j *RankingJob) Run(ctx context.Context) error {
	// fast path: do not queue behind running stages only to find the round incomplete
	if !j.round.Ready() {
		return j.deferred()
	}

	ran, err := j.round.Join(func() error {
		_, err := j.service.Rank(ctx)
		return err
	})
	if !ran {
		return j.deferred()
	}
	return err
}

func (j *RankingJob) deferred() error {
	j.log.Debug().Msg("Profit and maturity cycles not complete yet, ranking deferred")
	return domain.ErrJobDeferred
}

// ConsensusJob refreshes the crowd forecast of every asset
type ConsensusJob struct {
	log     zerolog.Logger
	service *consensus.ConsensusService
}

// NewConsensusJob creates a new ConsensusJob
func NewConsensusJob(service *consensus.ConsensusService, log zerolog.Logger) *ConsensusJob {
	return &ConsensusJob{
		log:     log.With().Str("job", JobConsensus).Logger(),
		service: service,
	}
}

// Name returns the job name
func (j *ConsensusJob) Name() string {
	return JobConsensus
}

// Run executes the consensus refresh
func (j *ConsensusJob) Run(ctx context.Context) error {
	_, err := j.service.Refresh(ctx)
	return err
}

// CatalogJob refreshes the current price of every asset in the catalog
type CatalogJob struct {
	log     zerolog.Logger
	service *catalog.CatalogService
}

// NewCatalogJob creates a new CatalogJob
func NewCatalogJob(service *catalog.CatalogService, log zerolog.Logger) *CatalogJob {
	return &CatalogJob{
		log:     log.With().Str("job", JobCatalog).Logger(),
		service: service,
	}
}

// Name returns the job name
func (j *CatalogJob) Name() string {
	return JobCatalog
}

// Run executes the catalog refresh
func (j *CatalogJob) Run(ctx context.Context) error {
	_, err := j.service.Refresh(ctx)
	return err
}
