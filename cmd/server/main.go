package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/simaogato/dealtracker-analytics/internal/adapter/coingecko"
	grpcadapter "github.com/simaogato/dealtracker-analytics/internal/adapter/grpc"
	"github.com/simaogato/dealtracker-analytics/internal/adapter/repository/postgres"
	"github.com/simaogato/dealtracker-analytics/internal/config"
	"github.com/simaogato/dealtracker-analytics/internal/scheduler"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/catalog"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/consensus"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/maturity"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/profit"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/ranking"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/snapshot"
	"github.com/simaogato/dealtracker-analytics/pkg/logger"
)

const (
	defaultAPIToken = "dev-token"
	dbConnAttempts  = 5
	dbConnDelay     = 2 * time.Second
)

// cycleOrder is the order a full cycle runs in: prices first, ranking last
var cycleOrder = []string{
	scheduler.JobCatalog,
	scheduler.JobProfit,
	scheduler.JobMaturity,
	scheduler.JobConsensus,
	scheduler.JobRanking,
}

func main() {
	once := flag.Bool("once", false, "run one full cycle and exit")
	flag.Parse()

	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if cfg.APIToken == defaultAPIToken {
		log.Warn().Msg("API_TOKEN not set, using the development token")
	}

	// 2. Setup Database
	db, err := connectWithRetry(cfg.DBConnStr, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Migrate(baseCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// 3. Initialize Repositories and the price provider
	ledgerRepo := postgres.NewLedgerRepository(db)
	assetRepo := postgres.NewAssetRepository(db)

	gecko := coingecko.NewClient(
		coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
		coingecko.WithAPIKey(cfg.CoinGecko.APIKey),
		coingecko.WithRateLimit(cfg.CoinGecko.RateLimit),
		coingecko.WithTimeout(cfg.CoinGecko.Timeout),
		coingecko.WithVsCurrency(cfg.CoinGecko.VsCurrency),
		coingecko.WithLogger(log),
	)

	// 4. Initialize Services (Use Cases)
	loader := snapshot.NewLoader(ledgerRepo, gecko, cfg.Location, log)
	catalogService := catalog.NewCatalogService(assetRepo, gecko, cfg.CoinGecko.MarketPages, log)
	profitService := profit.NewProfitService(ledgerRepo, log)
	maturityService := maturity.NewMaturityService(ledgerRepo, log)
	rankingService := ranking.NewRankingService(ledgerRepo, log)
	consensusService := consensus.NewConsensusService(ledgerRepo, log)

	// 5. Register jobs
	round := scheduler.NewRound(scheduler.JobProfit, scheduler.JobMaturity)
	sched := scheduler.New(baseCtx, cfg.Location, log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedules.Catalog, scheduler.NewCatalogJob(catalogService, log)},
		{cfg.Schedules.Profit, scheduler.NewProfitJob(round, loader, profitService, log)},
		{cfg.Schedules.Maturity, scheduler.NewMaturityJob(round, loader, maturityService, log)},
		{cfg.Schedules.Ranking, scheduler.NewRankingJob(round, rankingService, log)},
		{cfg.Schedules.Consensus, scheduler.NewConsensusJob(consensusService, log)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			log.Fatal().Err(err).Str("job", j.job.Name()).Msg("Failed to register job")
		}
	}

	if *once {
		err := sched.RunSequence(baseCtx, cycleOrder...)
		if err != nil {
			log.Error().Err(err).Msg("Cycle finished with errors")
			db.Close()
			os.Exit(1)
		}
		log.Info().Msg("Cycle finished")
		return
	}

	sched.Start()
	if cfg.RunOnStart {
		go func() {
			if err := sched.RunSequence(baseCtx, cycleOrder...); err != nil {
				log.Error().Err(err).Msg("Startup cycle finished with errors")
			}
		}()
	}

	// 6. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.UnaryInterceptor(grpcadapter.AuthInterceptor(cfg.APIToken, log, grpcadapter.PublicMethods...)),
	)
	healthServer := grpcadapter.Register(grpcServer, grpcadapter.NewServer(baseCtx, sched, ledgerRepo, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("Failed to listen")
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to serve gRPC server")
		}
	}()

	// Graceful shutdown
	waitForShutdown(grpcServer, healthServer, sched, cancel, log)
}

// connectWithRetry gives Postgres a few attempts to come up
func connectWithRetry(connStr string, log zerolog.Logger) (*postgres.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= dbConnAttempts; attempt++ {
		db, err := postgres.NewDB(connStr)
		if err == nil {
			return db, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("Database not ready, retrying")
		time.Sleep(dbConnDelay)
	}
	return nil, lastErr
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(
	grpcServer *grpclib.Server,
	healthServer *health.Server,
	sched *scheduler.Scheduler,
	cancel context.CancelFunc,
	log zerolog.Logger,
) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	// Running jobs see a cancelled context and stop at their next check
	cancel()
	sched.Stop()
}
