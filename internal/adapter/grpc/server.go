package grpc

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/scheduler"
)

// healthCheckMethod is reachable without a token so probes need no credentials
const healthCheckMethod = "/grpc.health.v1.Health/Check"

// PublicMethods lists the methods the auth interceptor lets through unauthenticated
var PublicMethods = []string{healthCheckMethod}

// JobRunner is the part of the scheduler the server drives
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
	Jobs() []scheduler.JobStatus
}

// RankingReader reads the persisted portfolios
type RankingReader interface {
	ListPortfolios(ctx context.Context) ([]*domain.Portfolio, error)
}

// Server implements the AnalyticsService gRPC server
type Server struct {
	Jobs    JobRunner
	Ranking RankingReader

	// baseCtx outlives requests; asynchronous runs are bound to it
	baseCtx context.Context
	log     zerolog.Logger
}

// NewServer creates a new gRPC server instance
func NewServer(baseCtx context.Context, jobs JobRunner, ranking RankingReader, log zerolog.Logger) *Server {
	return &Server{
		Jobs:    jobs,
		Ranking: ranking,
		baseCtx: baseCtx,
		log:     log.With().Str("component", "grpc").Logger(),
	}
}

// Register registers the AnalyticsService and the health service on s.
// The returned health server reports SERVING until Shutdown is called on it.
func Register(s *grpc.Server, srv *Server) *health.Server {
	RegisterAnalyticsServer(s, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(AnalyticsServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return hs
}

// RunJob handles the RunJob RPC
func (s *Server) RunJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := strings.TrimSpace(req.GetFields()["job"].GetStringValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "job is required")
	}

	if req.GetFields()["async"].GetBoolValue() {
		if !s.known(name) {
			return nil, mapError(domain.ErrUnknownJob)
		}
		go func() {
			if err := s.Jobs.RunNow(s.baseCtx, name); err != nil {
				s.log.Error().Err(err).Str("job", name).Msg("Triggered job failed")
			}
		}()
		return structpb.NewStruct(map[string]interface{}{
			"job":    name,
			"status": "started",
		})
	}

	start := time.Now()
	if err := s.Jobs.RunNow(ctx, name); err != nil {
		return nil, mapError(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) known(name string) bool {
	for _, j := range s.Jobs.Jobs() {
		if j.Name == name {
			return true
		}
	}
	return false
}

// ListJobs handles the ListJobs RPC
func (s *Server) ListJobs(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	statuses := s.Jobs.Jobs()

	jobs := make([]interface{}, 0, len(statuses))
	for _, j := range statuses {
		jobs = append(jobs, map[string]interface{}{
			"name":        j.Name,
			"schedule":    j.Schedule,
			"running":     j.Running,
			"runs":        j.Runs,
			"skipped":     j.Skipped,
			"last_start":  formatTime(j.LastStart),
			"last_finish": formatTime(j.LastFinish),
			"last_error":  j.LastError,
		})
	}

	return structpb.NewStruct(map[string]interface{}{"jobs": jobs})
}

// GetRanking handles the GetRanking RPC.
// Only ranked portfolios are returned, ordered by rating number.
func (s *Server) GetRanking(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	portfolios, err := s.Ranking.ListPortfolios(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	ranked := make([]*domain.Portfolio, 0, len(portfolios))
	for _, p := range portfolios {
		if p.RatingNumber > 0 {
			ranked = append(ranked, p)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].RatingNumber < ranked[j].RatingNumber
	})

	entries := make([]interface{}, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, map[string]interface{}{
			"rating_number": p.RatingNumber,
			"portfolio_id":  p.ID.String(),
			"owner_id":      p.OwnerID.String(),
			"profit":        p.LatestProfit().String(),
			"success":       p.Success,
			"holdings":      p.DistinctHoldings(),
			"deals":         len(p.Deals),
		})
	}

	return structpb.NewStruct(map[string]interface{}{"ranking": entries})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	errorMsg := err.Error()

	switch {
	case errors.Is(err, domain.ErrUnknownJob), errors.Is(err, domain.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s", errorMsg)
	case errors.Is(err, domain.ErrJobRunning), errors.Is(err, domain.ErrJobDeferred):
		return status.Errorf(codes.FailedPrecondition, "%s", errorMsg)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", errorMsg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", errorMsg)
	}

	var fetchErr *domain.ExternalFetchError
	if errors.As(err, &fetchErr) {
		return status.Errorf(codes.Unavailable, "%s", errorMsg)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", errorMsg)
}
