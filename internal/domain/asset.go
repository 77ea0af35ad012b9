package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Asset represents a tradable coin as maintained by the price-ingestion process
type Asset struct {
	ID           string // CoinGecko-style identifier, e.g. "bitcoin"
	Symbol       string
	Logo         string
	CurrentPrice decimal.Decimal
	MarketCap    decimal.Decimal
	UpdatedAt    time.Time
}

// Validate ensures the asset adheres to domain rules
func (a *Asset) Validate() error {
	if a.ID == "" {
		return errors.New("asset id cannot be empty")
	}
	if !a.CurrentPrice.IsPositive() {
		return errors.New("asset current price must be positive")
	}
	if a.MarketCap.IsNegative() {
		return errors.New("asset market cap cannot be negative")
	}
	return nil
}

// PricePoint is a single daily sample of an asset's price history
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// AssetConsensus holds the mean forecast of all deals placed on an asset, per horizon
type AssetConsensus struct {
	AssetID string
	Week    decimal.Decimal
	Month   decimal.Decimal
	Quarter decimal.Decimal
	Year    decimal.Decimal
}
