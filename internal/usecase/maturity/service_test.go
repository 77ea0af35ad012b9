package maturity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
	"github.com/simaogato/dealtracker-analytics/internal/usecase/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLedgerRepository is a mock implementation of LedgerRepository for testing
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) ListPortfolios(ctx context.Context) ([]*domain.Portfolio, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Portfolio), args.Error(1)
}

func (m *MockLedgerRepository) ListAssets(ctx context.Context) (map[string]*domain.Asset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.Asset), args.Error(1)
}

func (m *MockLedgerRepository) ListDeals(ctx context.Context) ([]domain.Deal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Deal), args.Error(1)
}

func (m *MockLedgerRepository) SaveProfit(ctx context.Context, portfolioID uuid.UUID, series []domain.ProfitPoint) error {
	args := m.Called(ctx, portfolioID, series)
	return args.Error(0)
}

func (m *MockLedgerRepository) SaveEvaluation(ctx context.Context, eval domain.Evaluation) error {
	args := m.Called(ctx, eval)
	return args.Error(0)
}

func (m *MockLedgerRepository) SaveRatings(ctx context.Context, ratings []domain.Rating) error {
	args := m.Called(ctx, ratings)
	return args.Error(0)
}

func (m *MockLedgerRepository) SaveConsensus(ctx context.Context, consensus []domain.AssetConsensus) error {
	args := m.Called(ctx, consensus)
	return args.Error(0)
}

var now = time.Date(2026, time.May, 20, 15, 30, 0, 0, time.UTC)

func deal(horizon domain.Horizon, created time.Time, forecast, snapshotPrice int64) domain.Deal {
	return domain.Deal{
		ID:        uuid.New(),
		Asset:     domain.AssetSnapshot{ID: "bitcoin", Symbol: "btc", Price: decimal.NewFromInt(snapshotPrice)},
		Type:      domain.DealTypeBuy,
		Forecast:  decimal.NewFromInt(forecast),
		Horizon:   horizon,
		CreatedAt: created,
		Count:     decimal.NewFromInt(1),
		Sum:       decimal.NewFromInt(snapshotPrice),
	}
}

func assets(price int64) map[string]*domain.Asset {
	return map[string]*domain.Asset{
		"bitcoin": {ID: "bitcoin", Symbol: "btc", CurrentPrice: decimal.NewFromInt(price)},
	}
}

func TestIsDue(t *testing.T) {
	tests := []struct {
		name    string
		horizon domain.Horizon
		created time.Time
		want    bool
	}{
		{"week, 6 days", domain.HorizonWeek, now.AddDate(0, 0, -6), false},
		{"week, 7 days", domain.HorizonWeek, now.AddDate(0, 0, -7), true},
		{"week, late in the day 7 days ago", domain.HorizonWeek, time.Date(2026, time.May, 13, 23, 59, 0, 0, time.UTC), true},
		{"month, 30 days across April", domain.HorizonMonth, time.Date(2026, time.April, 21, 0, 0, 0, 0, time.UTC), false},
		{"month, same day last month", domain.HorizonMonth, time.Date(2026, time.April, 20, 23, 0, 0, 0, time.UTC), true},
		{"quarter, two months", domain.HorizonQuarter, now.AddDate(0, -2, 0), false},
		{"quarter, three months", domain.HorizonQuarter, now.AddDate(0, -3, 0), true},
		{"year, eleven months", domain.HorizonYear, now.AddDate(0, -11, 0), false},
		{"year, one year", domain.HorizonYear, now.AddDate(-1, 0, 0), true},
		{"unknown horizon", domain.Horizon("decade"), now.AddDate(-20, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDue(deal(tt.horizon, tt.created, 5, 100), now, time.UTC))
		})
	}
}

func TestSucceeded(t *testing.T) {
	tests := []struct {
		name     string
		forecast int64
		current  int64
		want     bool
	}{
		{"rise forecast, price up", 10, 120, true},
		{"rise forecast, price flat", 10, 100, true},
		{"rise forecast, price down", 10, 90, false},
		{"fall forecast, price down", -10, 90, true},
		{"fall forecast, price flat", -10, 100, false},
		{"fall forecast, price up", -10, 120, false},
		{"zero forecast never succeeds", 0, 120, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deal(domain.HorizonWeek, now, tt.forecast, 100)
			assert.Equal(t, tt.want, Succeeded(d, assets(tt.current)["bitcoin"]))
		})
	}
}

func TestEvaluatePortfolio_HalfOfAllDealsSucceeded(t *testing.T) {
	// 4 deals: 2 due and successful, 2 never matured -> round(100 * 2 / 4)
	p := &domain.Portfolio{
		ID: uuid.New(),
		Deals: []domain.Deal{
			deal(domain.HorizonWeek, now.AddDate(0, 0, -10), 5, 100),
			deal(domain.HorizonMonth, now.AddDate(0, -2, 0), 5, 100),
			deal(domain.HorizonYear, now.AddDate(0, -1, 0), 5, 100),
			deal(domain.HorizonQuarter, now.AddDate(0, 0, -3), 5, 100),
		},
	}

	eval, missing := EvaluatePortfolio(p, assets(150), now, time.UTC)

	assert.Empty(t, missing)
	assert.Equal(t, 50, eval.Success)
	require.Len(t, eval.Closed, 2)
	assert.Equal(t, p.Deals[0].ID, eval.Closed[0].DealID)
	assert.Equal(t, p.Deals[1].ID, eval.Closed[1].DealID)
	assert.False(t, p.Deals[0].Closed, "EvaluatePortfolio must not mutate its input")
}

func TestEvaluatePortfolio_NoDeals(t *testing.T) {
	eval, _ := EvaluatePortfolio(&domain.Portfolio{ID: uuid.New()}, assets(100), now, time.UTC)

	assert.Equal(t, 0, eval.Success)
	assert.Empty(t, eval.Closed)
}

func TestEvaluatePortfolio_WeekDealEightDaysOld(t *testing.T) {
	p := &domain.Portfolio{
		ID:    uuid.New(),
		Deals: []domain.Deal{deal(domain.HorizonWeek, now.AddDate(0, 0, -8), 3, 100)},
	}

	eval, _ := EvaluatePortfolio(p, assets(100), now, time.UTC)

	require.Len(t, eval.Closed, 1)
	assert.True(t, eval.Closed[0].Succeeded)
	assert.Equal(t, 100, eval.Success)
}

func TestEvaluatePortfolio_FailedForecastStillCloses(t *testing.T) {
	p := &domain.Portfolio{
		ID:    uuid.New(),
		Deals: []domain.Deal{deal(domain.HorizonWeek, now.AddDate(0, 0, -8), -3, 100)},
	}

	eval, _ := EvaluatePortfolio(p, assets(130), now, time.UTC)

	require.Len(t, eval.Closed, 1)
	assert.False(t, eval.Closed[0].Succeeded)
	assert.Equal(t, 0, eval.Success)
}

func TestEvaluatePortfolio_ClosedDealsAreNeverRescored(t *testing.T) {
	// closed long ago as a success; the price has since collapsed
	closed := deal(domain.HorizonWeek, now.AddDate(0, 0, -30), 5, 100)
	closed.Close(true)
	// closed although its horizon has not elapsed (e.g. by an earlier clock); must stay closed
	early := deal(domain.HorizonYear, now.AddDate(0, 0, -1), 5, 100)
	early.Close(false)

	p := &domain.Portfolio{ID: uuid.New(), Deals: []domain.Deal{closed, early}}

	eval, _ := EvaluatePortfolio(p, assets(1), now, time.UTC)

	assert.Empty(t, eval.Closed)
	assert.Equal(t, 50, eval.Success)
}

func TestEvaluatePortfolio_MissingCurrentPriceLeavesDealOpen(t *testing.T) {
	p := &domain.Portfolio{
		ID:    uuid.New(),
		Deals: []domain.Deal{deal(domain.HorizonWeek, now.AddDate(0, 0, -8), 3, 100)},
	}

	eval, missing := EvaluatePortfolio(p, map[string]*domain.Asset{}, now, time.UTC)

	assert.Equal(t, []string{"bitcoin"}, missing)
	assert.Empty(t, eval.Closed)
	assert.Equal(t, 0, eval.Success)
}

func TestEvaluatePortfolio_UnpricedCatalogRowLeavesDealOpen(t *testing.T) {
	p := &domain.Portfolio{
		ID:    uuid.New(),
		Deals: []domain.Deal{deal(domain.HorizonWeek, now.AddDate(0, 0, -8), -5, 100)},
	}

	tests := []struct {
		name  string
		price decimal.Decimal
	}{
		{"zero price", decimal.Zero},
		{"negative price", decimal.NewFromInt(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assets := map[string]*domain.Asset{"bitcoin": {ID: "bitcoin", CurrentPrice: tt.price}}

			eval, missing := EvaluatePortfolio(p, assets, now, time.UTC)

			assert.Equal(t, []string{"bitcoin"}, missing)
			assert.Empty(t, eval.Closed, "a falling forecast must not be scored against an unpriced asset")
			assert.Equal(t, 0, eval.Success)
		})
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	service := NewMaturityService(mockRepo, zerolog.Nop())

	p := &domain.Portfolio{
		ID: uuid.New(),
		Deals: []domain.Deal{
			deal(domain.HorizonWeek, now.AddDate(0, 0, -8), 5, 100),
			deal(domain.HorizonWeek, now.AddDate(0, 0, -9), -5, 100),
			deal(domain.HorizonYear, now.AddDate(0, 0, -9), 5, 100),
		},
	}
	batch := &snapshot.Batch{Now: now, Location: time.UTC, Portfolios: []*domain.Portfolio{p}, Assets: assets(110)}

	var saved []domain.Evaluation
	mockRepo.On("SaveEvaluation", ctx, mock.AnythingOfType("domain.Evaluation")).
		Run(func(args mock.Arguments) { saved = append(saved, args.Get(1).(domain.Evaluation)) }).
		Return(nil)

	first, err := service.Evaluate(ctx, batch)
	require.NoError(t, err)
	closedAfterFirst := closedSet(p)

	second, err := service.Evaluate(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Closed)
	assert.Equal(t, 0, second.Closed)
	require.Len(t, saved, 2)
	assert.Equal(t, saved[0].Success, saved[1].Success)
	assert.Equal(t, 33, p.Success)
	assert.Equal(t, closedAfterFirst, closedSet(p))
	assert.Empty(t, saved[1].Closed)
}

func TestEvaluate_PersistenceFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	service := NewMaturityService(mockRepo, zerolog.Nop())

	failing := &domain.Portfolio{ID: uuid.New(), Deals: []domain.Deal{deal(domain.HorizonWeek, now.AddDate(0, 0, -8), 5, 100)}}
	healthy := &domain.Portfolio{ID: uuid.New(), Deals: []domain.Deal{deal(domain.HorizonWeek, now.AddDate(0, 0, -8), 5, 100)}}
	batch := &snapshot.Batch{Now: now, Location: time.UTC, Portfolios: []*domain.Portfolio{failing, healthy}, Assets: assets(100)}

	mockRepo.On("SaveEvaluation", ctx, mock.MatchedBy(func(e domain.Evaluation) bool { return e.PortfolioID == failing.ID })).
		Return(errors.New("deadlock detected"))
	mockRepo.On("SaveEvaluation", ctx, mock.MatchedBy(func(e domain.Evaluation) bool { return e.PortfolioID == healthy.ID })).
		Return(nil)

	report, err := service.Evaluate(ctx, batch)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{failing.ID}, report.Failed)
	assert.Equal(t, 1, report.Evaluated)
	assert.False(t, failing.Deals[0].Closed)
	assert.Equal(t, 0, failing.Success)
	assert.True(t, healthy.Deals[0].Closed)
	assert.Equal(t, 100, healthy.Success)
	mockRepo.AssertExpectations(t)
}

func closedSet(p *domain.Portfolio) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	for _, d := range p.Deals {
		if d.Closed {
			out[d.ID] = d.Succeeded
		}
	}
	return out
}
