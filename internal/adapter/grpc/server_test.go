package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/scheduler"
)

const testToken = "test-token-123"

// MockJobRunner is a mock implementation of JobRunner for testing
type MockJobRunner struct {
	mock.Mock
}

func (m *MockJobRunner) RunNow(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockJobRunner) Jobs() []scheduler.JobStatus {
	args := m.Called()
	return args.Get(0).([]scheduler.JobStatus)
}

// MockRankingReader is a mock implementation of RankingReader for testing
type MockRankingReader struct {
	mock.Mock
}

func (m *MockRankingReader) ListPortfolios(ctx context.Context) ([]*domain.Portfolio, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Portfolio), args.Error(1)
}

type testEnv struct {
	client *AnalyticsClient
	health healthpb.HealthClient
	jobs   *MockJobRunner
	reader *MockRankingReader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	jobs := new(MockJobRunner)
	reader := new(MockRankingReader)
	log := zerolog.Nop()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(AuthInterceptor(testToken, log, PublicMethods...)))
	Register(s, NewServer(context.Background(), jobs, reader, log))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testEnv{
		client: NewAnalyticsClient(conn),
		health: healthpb.NewHealthClient(conn),
		jobs:   jobs,
		reader: reader,
	}
}

func authed() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", testToken)
}

func jobRequest(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return req
}

func TestHealth_NoTokenNeeded(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: AnalyticsServiceName})

	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRunJob_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.RunJob(context.Background(), jobRequest(t, map[string]interface{}{"job": "profit"}))

	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	env.jobs.AssertNotCalled(t, "RunNow", mock.Anything, mock.Anything)
}

func TestRunJob(t *testing.T) {
	tests := []struct {
		name     string
		job      string
		runErr   error
		wantCode codes.Code
	}{
		{name: "completed", job: "profit", wantCode: codes.OK},
		{name: "unknown job", job: "nope", runErr: domain.ErrUnknownJob, wantCode: codes.NotFound},
		{name: "already running", job: "ranking", runErr: domain.ErrJobRunning, wantCode: codes.FailedPrecondition},
		{name: "ranking deferred", job: "ranking", runErr: domain.ErrJobDeferred, wantCode: codes.FailedPrecondition},
		{name: "job failure", job: "maturity", runErr: errors.New("store down"), wantCode: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.jobs.On("RunNow", mock.Anything, tt.job).Return(tt.runErr)

			resp, err := env.client.RunJob(authed(), jobRequest(t, map[string]interface{}{"job": tt.job}))

			assert.Equal(t, tt.wantCode, status.Code(err))
			if tt.wantCode == codes.OK {
				assert.Equal(t, "completed", resp.GetFields()["status"].GetStringValue())
				assert.Equal(t, tt.job, resp.GetFields()["job"].GetStringValue())
			}
		})
	}
}

func TestRunJob_MissingName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.RunJob(authed(), jobRequest(t, map[string]interface{}{}))

	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRunJob_Async(t *testing.T) {
	env := newTestEnv(t)
	ran := make(chan struct{})
	env.jobs.On("Jobs").Return([]scheduler.JobStatus{{Name: "consensus"}})
	env.jobs.On("RunNow", mock.Anything, "consensus").Run(func(mock.Arguments) { close(ran) }).Return(nil)

	resp, err := env.client.RunJob(authed(), jobRequest(t, map[string]interface{}{"job": "consensus", "async": true}))

	require.NoError(t, err)
	assert.Equal(t, "started", resp.GetFields()["status"].GetStringValue())
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("async job was not started")
	}

	_, err = env.client.RunJob(authed(), jobRequest(t, map[string]interface{}{"job": "missing", "async": true}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t)
	finished := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	env.jobs.On("Jobs").Return([]scheduler.JobStatus{
		{Name: "maturity", Schedule: "0 30 * * * *", Runs: 3, LastFinish: finished, LastError: "boom"},
		{Name: "profit", Running: true, Skipped: 1},
	})

	resp, err := env.client.ListJobs(authed(), &emptypb.Empty{})

	require.NoError(t, err)
	jobs := resp.GetFields()["jobs"].GetListValue().GetValues()
	require.Len(t, jobs, 2)

	first := jobs[0].GetStructValue().GetFields()
	assert.Equal(t, "maturity", first["name"].GetStringValue())
	assert.Equal(t, float64(3), first["runs"].GetNumberValue())
	assert.Equal(t, "2026-03-15T12:00:00Z", first["last_finish"].GetStringValue())
	assert.Equal(t, "", first["last_start"].GetStringValue())
	assert.Equal(t, "boom", first["last_error"].GetStringValue())

	second := jobs[1].GetStructValue().GetFields()
	assert.True(t, second["running"].GetBoolValue())
	assert.Equal(t, float64(1), second["skipped"].GetNumberValue())
}

func TestGetRanking(t *testing.T) {
	env := newTestEnv(t)
	first := &domain.Portfolio{
		ID:           uuid.New(),
		RatingNumber: 1,
		Success:      50,
		Profit:       []domain.ProfitPoint{{Value: decimal.RequireFromString("1.4")}},
		Holdings:     []domain.Holding{{AssetID: "bitcoin"}, {AssetID: "ethereum"}},
	}
	second := &domain.Portfolio{ID: uuid.New(), RatingNumber: 2}
	unranked := &domain.Portfolio{ID: uuid.New()}
	env.reader.On("ListPortfolios", mock.Anything).Return([]*domain.Portfolio{second, unranked, first}, nil)

	resp, err := env.client.GetRanking(authed(), &emptypb.Empty{})

	require.NoError(t, err)
	ranking := resp.GetFields()["ranking"].GetListValue().GetValues()
	require.Len(t, ranking, 2)

	top := ranking[0].GetStructValue().GetFields()
	assert.Equal(t, first.ID.String(), top["portfolio_id"].GetStringValue())
	assert.Equal(t, float64(1), top["rating_number"].GetNumberValue())
	assert.Equal(t, "1.4", top["profit"].GetStringValue())
	assert.Equal(t, float64(50), top["success"].GetNumberValue())
	assert.Equal(t, float64(2), top["holdings"].GetNumberValue())
	assert.Equal(t, second.ID.String(), ranking[1].GetStructValue().GetFields()["portfolio_id"].GetStringValue())
}

func TestGetRanking_StoreError(t *testing.T) {
	env := newTestEnv(t)
	env.reader.On("ListPortfolios", mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := env.client.GetRanking(authed(), &emptypb.Empty{})

	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"unknown job", domain.ErrUnknownJob, codes.NotFound},
		{"not found wrapped", &domain.PersistenceError{Op: "save profit", Err: domain.ErrNotFound}, codes.NotFound},
		{"running", domain.ErrJobRunning, codes.FailedPrecondition},
		{"deferred wrapped", fmt.Errorf("ranking: %w", domain.ErrJobDeferred), codes.FailedPrecondition},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"fetch", &domain.ExternalFetchError{AssetID: "bitcoin", Err: errors.New("429")}, codes.Unavailable},
		{"other", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(mapError(tt.err)))
		})
	}
}
