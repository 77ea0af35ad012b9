package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DealType represents the side of a deal
type DealType string

const (
	DealTypeBuy  DealType = "buy"
	DealTypeSell DealType = "sell"
)

// Horizon represents the maturity window of a deal's forecast
type Horizon string

const (
	HorizonWeek    Horizon = "week"
	HorizonMonth   Horizon = "month"
	HorizonQuarter Horizon = "quarter"
	HorizonYear    Horizon = "year"
)

// Valid reports whether h is one of the known horizons
func (h Horizon) Valid() bool {
	switch h {
	case HorizonWeek, HorizonMonth, HorizonQuarter, HorizonYear:
		return true
	}
	return false
}

// AssetSnapshot is the copy of an asset taken when a deal is created.
// It is not a live reference: later price changes never touch it.
type AssetSnapshot struct {
	ID     string
	Symbol string
	Logo   string
	Price  decimal.Decimal
}

// Deal represents a recorded buy/sell action carrying a price-direction forecast
type Deal struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Asset     AssetSnapshot
	Type      DealType
	Forecast  decimal.Decimal // signed percentage; positive = "will rise"
	Horizon   Horizon
	CreatedAt time.Time
	Count     decimal.Decimal
	Sum       decimal.Decimal // cost basis = Count * Asset.Price

	// Closed only ever moves false -> true.
	Closed bool
	// Succeeded is scored once, when the deal closes.
	Succeeded bool
}

// IsBuy reports whether the deal is a buy
func (d *Deal) IsBuy() bool {
	return d.Type == DealTypeBuy
}

// Close marks the deal closed with the given outcome.
// Closing an already closed deal is a no-op and keeps the original outcome.
func (d *Deal) Close(succeeded bool) bool {
	if d.Closed {
		return false
	}
	d.Closed = true
	d.Succeeded = succeeded
	return true
}

// Validate ensures the deal adheres to domain rules
func (d *Deal) Validate() error {
	if d.Asset.ID == "" {
		return errors.New("deal asset id cannot be empty")
	}
	if d.Type != DealTypeBuy && d.Type != DealTypeSell {
		return errors.New("deal type must be buy or sell")
	}
	if !d.Horizon.Valid() {
		return errors.New("deal horizon must be week, month, quarter or year")
	}
	if d.CreatedAt.IsZero() {
		return errors.New("deal creation time cannot be zero")
	}
	if d.Count.IsNegative() {
		return errors.New("deal count cannot be negative")
	}
	if d.Succeeded && !d.Closed {
		return errors.New("open deal cannot be marked succeeded")
	}
	return nil
}
