package calc

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

// PriceIndex answers exact-day price lookups over already fetched histories
type PriceIndex struct {
	loc    *time.Location
	prices map[string]map[Day]decimal.Decimal
}

// NewPriceIndex creates an empty index whose days are evaluated in loc
func NewPriceIndex(loc *time.Location) *PriceIndex {
	if loc == nil {
		loc = time.UTC
	}
	return &PriceIndex{
		loc:    loc,
		prices: make(map[string]map[Day]decimal.Decimal),
	}
}

// Add registers the history of an asset. A later sample on the same day wins.
func (ix *PriceIndex) Add(assetID string, history []domain.PricePoint) {
	days := make(map[Day]decimal.Decimal, len(history))
	for _, p := range history {
		days[DayOf(p.Time, ix.loc)] = p.Price
	}
	ix.prices[assetID] = days
}

// PriceOn returns the sample of the asset taken on t's calendar day. No interpolation.
func (ix *PriceIndex) PriceOn(assetID string, t time.Time) (decimal.Decimal, bool) {
	days, ok := ix.prices[assetID]
	if !ok {
		return decimal.Zero, false
	}
	p, ok := days[DayOf(t, ix.loc)]
	return p, ok
}

// TrailingYear returns the points of history that fall in [now - 1 year, now], sorted ascending
// with one point per calendar day.
func TrailingYear(history []domain.PricePoint, now time.Time, loc *time.Location) []domain.PricePoint {
	start := now.AddDate(-1, 0, 0)
	byDay := make(map[Day]int)
	out := make([]domain.PricePoint, 0, len(history))
	for _, p := range history {
		if !WithinInterval(p.Time, start, now) {
			continue
		}
		d := DayOf(p.Time, loc)
		if i, dup := byDay[d]; dup {
			if p.Time.After(out[i].Time) {
				out[i] = p
			}
			continue
		}
		byDay[d] = len(out)
		out = append(out, p)
	}
	sortPoints(out)
	return out
}

func sortPoints(points []domain.PricePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
}
