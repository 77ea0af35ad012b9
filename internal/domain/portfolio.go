package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProfitPoint is one day of a portfolio's profit curve
type ProfitPoint struct {
	Date  time.Time
	Value decimal.Decimal // buy cost / current value, rounded to one decimal
}

// Holding is an asset held by a portfolio
type Holding struct {
	AssetID string
	Count   decimal.Decimal
}

// Portfolio represents a user's portfolio with its deals fully resolved
type Portfolio struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Deals        []Deal
	Holdings     []Holding
	Profit       []ProfitPoint // ascending by date, unique dates
	Success      int           // 0..100
	RatingNumber int           // 1 = best, 0 = not ranked yet
}

// LatestProfit returns the value of the most recent profit point, or zero when there is none
func (p *Portfolio) LatestProfit() decimal.Decimal {
	if len(p.Profit) == 0 {
		return decimal.Zero
	}
	return p.Profit[len(p.Profit)-1].Value
}

// DistinctHoldings returns the number of distinct assets held
func (p *Portfolio) DistinctHoldings() int {
	seen := make(map[string]struct{}, len(p.Holdings))
	for _, h := range p.Holdings {
		seen[h.AssetID] = struct{}{}
	}
	return len(seen)
}

// Validate ensures the portfolio adheres to domain rules
func (p *Portfolio) Validate() error {
	if p.Success < 0 || p.Success > 100 {
		return errors.New("portfolio success must be between 0 and 100")
	}
	if p.RatingNumber < 0 {
		return errors.New("portfolio rating number cannot be negative")
	}
	for i := 1; i < len(p.Profit); i++ {
		if !p.Profit[i].Date.After(p.Profit[i-1].Date) {
			return errors.New("portfolio profit must be strictly ascending by date")
		}
	}
	for i := range p.Deals {
		if err := p.Deals[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Rating is the rank assigned to one portfolio by a ranking run
type Rating struct {
	PortfolioID  uuid.UUID
	RatingNumber int
}

// Evaluation is the outcome of one maturity run for a portfolio
type Evaluation struct {
	PortfolioID uuid.UUID
	Closed      []ClosedDeal // deals closed by this run only
	Success     int
}

// ClosedDeal is a deal transition from open to closed
type ClosedDeal struct {
	DealID    uuid.UUID
	Succeeded bool
}
