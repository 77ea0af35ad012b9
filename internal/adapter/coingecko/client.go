// Package coingecko provides the price history provider backed by the CoinGecko API
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

const (
	DefaultBaseURL    = "https://api.coingecko.com/api/v3"
	DefaultTimeout    = 30 * time.Second
	DefaultRateLimit  = 0.5 // requests per second, the public tier allows ~30/min
	DefaultVsCurrency = "usd"
	MarketsPageSize   = 250
)

// Client fetches price histories and market snapshots.
// It implements domain.PriceHistoryProvider and domain.MarketDataProvider.
type Client struct {
	baseURL    string
	apiKey     string
	vsCurrency string
	httpClient *http.Client
	logger     zerolog.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithAPIKey sets the demo API key sent with every request
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithVsCurrency sets the quote currency
func WithVsCurrency(currency string) ClientOption {
	return func(c *Client) {
		c.vsCurrency = currency
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "coingecko").Logger()
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new CoinGecko client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		vsCurrency: DefaultVsCurrency,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CoinGecko API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap maps a 404 to domain.ErrNotFound
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("CoinGecko API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

type marketChartResponse struct {
	Prices [][]json.Number `json:"prices"`
}

// History returns the full daily price history of an asset, oldest first
func (c *Client) History(ctx context.Context, assetID string) ([]domain.PricePoint, error) {
	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("days", "max")
	params.Set("interval", "daily")

	path := fmt.Sprintf("/coins/%s/market_chart", url.PathEscape(assetID))

	var chart marketChartResponse
	if err := c.get(ctx, path, params, &chart); err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(chart.Prices))
	for i, sample := range chart.Prices {
		if len(sample) < 2 {
			return nil, fmt.Errorf("malformed price sample %d for %s", i, assetID)
		}
		ms, err := sample[0].Int64()
		if err != nil {
			// some endpoints return fractional timestamps
			f, ferr := sample[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("invalid timestamp in sample %d for %s: %w", i, assetID, err)
			}
			ms = int64(f)
		}
		price, err := decimal.NewFromString(sample[1].String())
		if err != nil {
			return nil, fmt.Errorf("invalid price in sample %d for %s: %w", i, assetID, err)
		}
		points = append(points, domain.PricePoint{
			Time:  time.UnixMilli(ms).UTC(),
			Price: price,
		})
	}

	c.logger.Debug().Str("asset_id", assetID).Int("points", len(points)).Msg("Price history fetched")
	return points, nil
}

type marketResponse struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Image        string      `json:"image"`
	CurrentPrice json.Number `json:"current_price"`
	MarketCap    json.Number `json:"market_cap"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// Markets returns one page of the market snapshot, ordered by market cap descending.
// Coins without a quoted price are left out.
func (c *Client) Markets(ctx context.Context, page int) ([]domain.Asset, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("vs_currency", c.vsCurrency)
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(MarketsPageSize))
	params.Set("page", strconv.Itoa(page))

	var rows []marketResponse
	if err := c.get(ctx, "/coins/markets", params, &rows); err != nil {
		return nil, err
	}

	assets := make([]domain.Asset, 0, len(rows))
	for _, row := range rows {
		if row.CurrentPrice == "" {
			c.logger.Debug().Str("asset_id", row.ID).Msg("No quoted price, coin skipped")
			continue
		}
		price, err := decimal.NewFromString(row.CurrentPrice.String())
		if err != nil {
			return nil, fmt.Errorf("invalid current price for %s: %w", row.ID, err)
		}
		marketCap := decimal.Zero
		if row.MarketCap != "" {
			if marketCap, err = decimal.NewFromString(row.MarketCap.String()); err != nil {
				return nil, fmt.Errorf("invalid market cap for %s: %w", row.ID, err)
			}
		}
		assets = append(assets, domain.Asset{
			ID:           row.ID,
			Symbol:       row.Symbol,
			Logo:         row.Image,
			CurrentPrice: price,
			MarketCap:    marketCap,
			UpdatedAt:    row.LastUpdated,
		})
	}

	return assets, nil
}
