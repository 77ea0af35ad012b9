package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB) domain.LedgerRepository {
	return &ledgerRepository{db: db}
}

const dealColumns = `
	id, portfolio_id, owner_id, asset_id, asset_symbol, asset_logo, asset_price,
	type, forecast, horizon, created_at, count, sum, closed, succeeded
`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeal(row rowScanner) (uuid.UUID, domain.Deal, error) {
	var d domain.Deal
	var portfolioID uuid.UUID
	var dealType, horizon string
	var priceStr, forecastStr, countStr, sumStr string

	err := row.Scan(
		&d.ID,
		&portfolioID,
		&d.OwnerID,
		&d.Asset.ID,
		&d.Asset.Symbol,
		&d.Asset.Logo,
		&priceStr,
		&dealType,
		&forecastStr,
		&horizon,
		&d.CreatedAt,
		&countStr,
		&sumStr,
		&d.Closed,
		&d.Succeeded,
	)
	if err != nil {
		return uuid.Nil, d, fmt.Errorf("failed to scan deal: %w", err)
	}

	d.Type = domain.DealType(dealType)
	d.Horizon = domain.Horizon(horizon)

	if d.Asset.Price, err = parseDecimal("asset_price", priceStr); err != nil {
		return uuid.Nil, d, err
	}
	if d.Forecast, err = parseDecimal("forecast", forecastStr); err != nil {
		return uuid.Nil, d, err
	}
	if d.Count, err = parseDecimal("count", countStr); err != nil {
		return uuid.Nil, d, err
	}
	if d.Sum, err = parseDecimal("sum", sumStr); err != nil {
		return uuid.Nil, d, err
	}

	return portfolioID, d, nil
}

// ListPortfolios retrieves every portfolio with its deals in ledger order, its holdings and its
// current profit series. All reads share one repeatable-read snapshot.
func (r *ledgerRepository) ListPortfolios(ctx context.Context) ([]*domain.Portfolio, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	portfolios, byID, err := r.listPortfolioHeaders(ctx, tx)
	if err != nil {
		return nil, err
	}

	// Deals
	rows, err := tx.QueryContext(ctx, `SELECT `+dealColumns+` FROM deals ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deals: %w", err)
	}
	for rows.Next() {
		portfolioID, d, err := scanDeal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if p, ok := byID[portfolioID]; ok {
			p.Deals = append(p.Deals, d)
		}
	}
	if err := closeRows(rows, "deals"); err != nil {
		return nil, err
	}

	// Holdings
	rows, err = tx.QueryContext(ctx, `
		SELECT portfolio_id, asset_id, count
		FROM portfolio_holdings
		ORDER BY portfolio_id, asset_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	for rows.Next() {
		var portfolioID uuid.UUID
		var h domain.Holding
		var countStr string
		if err := rows.Scan(&portfolioID, &h.AssetID, &countStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if h.Count, err = parseDecimal("count", countStr); err != nil {
			rows.Close()
			return nil, err
		}
		if p, ok := byID[portfolioID]; ok {
			p.Holdings = append(p.Holdings, h)
		}
	}
	if err := closeRows(rows, "holdings"); err != nil {
		return nil, err
	}

	// Profit series
	rows, err = tx.QueryContext(ctx, `
		SELECT portfolio_id, date, value
		FROM profit_points
		ORDER BY portfolio_id, date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profit points: %w", err)
	}
	for rows.Next() {
		var portfolioID uuid.UUID
		var pt domain.ProfitPoint
		var valueStr string
		if err := rows.Scan(&portfolioID, &pt.Date, &valueStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan profit point: %w", err)
		}
		if pt.Value, err = parseDecimal("value", valueStr); err != nil {
			rows.Close()
			return nil, err
		}
		if p, ok := byID[portfolioID]; ok {
			p.Profit = append(p.Profit, pt)
		}
	}
	if err := closeRows(rows, "profit points"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return portfolios, nil
}

func (r *ledgerRepository) listPortfolioHeaders(ctx context.Context, tx *sql.Tx) ([]*domain.Portfolio, map[uuid.UUID]*domain.Portfolio, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, owner_id, success, rating_number
		FROM portfolios
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*domain.Portfolio
	byID := make(map[uuid.UUID]*domain.Portfolio)
	for rows.Next() {
		p := &domain.Portfolio{}
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Success, &p.RatingNumber); err != nil {
			return nil, nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, byID, nil
}

func closeRows(rows *sql.Rows, what string) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating %s: %w", what, err)
	}
	return rows.Close()
}

// ListAssets retrieves the asset catalog keyed by asset ID
func (r *ledgerRepository) ListAssets(ctx context.Context) (map[string]*domain.Asset, error) {
	query := `
		SELECT id, symbol, logo, current_price, market_cap, updated_at
		FROM assets
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := make(map[string]*domain.Asset)
	for rows.Next() {
		a := &domain.Asset{}
		var priceStr, capStr string
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Logo, &priceStr, &capStr, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		if a.CurrentPrice, err = parseDecimal("current_price", priceStr); err != nil {
			return nil, err
		}
		if a.MarketCap, err = parseDecimal("market_cap", capStr); err != nil {
			return nil, err
		}
		assets[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// ListDeals retrieves every deal in ledger order
func (r *ledgerRepository) ListDeals(ctx context.Context) ([]domain.Deal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+dealColumns+` FROM deals ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deals: %w", err)
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		_, d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deals: %w", err)
	}

	return deals, nil
}

// SaveProfit replaces the profit series of a portfolio and records its latest value
func (r *ledgerRepository) SaveProfit(ctx context.Context, portfolioID uuid.UUID, series []domain.ProfitPoint) error {
	const op = "save profit"

	dates := make([]string, len(series))
	values := make([]string, len(series))
	latest := "0"
	for i, pt := range series {
		dates[i] = pt.Date.UTC().Format(time.RFC3339Nano)
		values[i] = pt.Value.String()
		latest = values[i]
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(op, portfolioID, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer dbTx.Rollback()

	result, err := dbTx.ExecContext(ctx, `UPDATE portfolios SET profit = $2 WHERE id = $1`, portfolioID, latest)
	if err != nil {
		return persistenceError(op, portfolioID, fmt.Errorf("failed to update portfolio: %w", err))
	}
	if err := requireRow(result); err != nil {
		return persistenceError(op, portfolioID, err)
	}

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM profit_points WHERE portfolio_id = $1`, portfolioID); err != nil {
		return persistenceError(op, portfolioID, fmt.Errorf("failed to delete profit points: %w", err))
	}

	if len(series) > 0 {
		insertQuery := `
			INSERT INTO profit_points (portfolio_id, date, value)
			SELECT $1, p.date, p.value
			FROM unnest($2::timestamptz[], $3::numeric[]) AS p(date, value)
		`
		if _, err := dbTx.ExecContext(ctx, insertQuery, portfolioID, pq.Array(dates), pq.Array(values)); err != nil {
			return persistenceError(op, portfolioID, fmt.Errorf("failed to insert profit points: %w", err))
		}
	}

	if err := dbTx.Commit(); err != nil {
		return persistenceError(op, portfolioID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// SaveEvaluation closes the evaluated deals and stores the portfolio success in one transaction.
// The closed = FALSE guard keeps an already scored deal from being rescored.
func (r *ledgerRepository) SaveEvaluation(ctx context.Context, eval domain.Evaluation) error {
	const op = "save evaluation"

	var succeeded, failed []string
	for _, c := range eval.Closed {
		if c.Succeeded {
			succeeded = append(succeeded, c.DealID.String())
		} else {
			failed = append(failed, c.DealID.String())
		}
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(op, eval.PortfolioID, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer dbTx.Rollback()

	closeQuery := `
		UPDATE deals
		SET closed = TRUE, succeeded = $3
		WHERE portfolio_id = $1 AND id = ANY($2::uuid[]) AND closed = FALSE
	`
	for _, group := range []struct {
		ids []string
		ok  bool
	}{{succeeded, true}, {failed, false}} {
		if len(group.ids) == 0 {
			continue
		}
		if _, err := dbTx.ExecContext(ctx, closeQuery, eval.PortfolioID, pq.Array(group.ids), group.ok); err != nil {
			return persistenceError(op, eval.PortfolioID, fmt.Errorf("failed to close deals: %w", err))
		}
	}

	result, err := dbTx.ExecContext(ctx, `UPDATE portfolios SET success = $2 WHERE id = $1`, eval.PortfolioID, eval.Success)
	if err != nil {
		return persistenceError(op, eval.PortfolioID, fmt.Errorf("failed to update success: %w", err))
	}
	if err := requireRow(result); err != nil {
		return persistenceError(op, eval.PortfolioID, err)
	}

	if err := dbTx.Commit(); err != nil {
		return persistenceError(op, eval.PortfolioID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// SaveRatings assigns every rating number in a single statement
func (r *ledgerRepository) SaveRatings(ctx context.Context, ratings []domain.Rating) error {
	const op = "save ratings"
	if len(ratings) == 0 {
		return nil
	}

	ids := make([]string, len(ratings))
	numbers := make([]int64, len(ratings))
	for i, rt := range ratings {
		ids[i] = rt.PortfolioID.String()
		numbers[i] = int64(rt.RatingNumber)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(op, uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer dbTx.Rollback()

	query := `
		UPDATE portfolios AS p
		SET rating_number = r.rating_number
		FROM unnest($1::uuid[], $2::int[]) AS r(id, rating_number)
		WHERE p.id = r.id
	`
	if _, err := dbTx.ExecContext(ctx, query, pq.Array(ids), pq.Array(numbers)); err != nil {
		return persistenceError(op, uuid.Nil, fmt.Errorf("failed to update ratings: %w", err))
	}

	if err := dbTx.Commit(); err != nil {
		return persistenceError(op, uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// SaveConsensus upserts the forecast consensus of every asset in one transaction
func (r *ledgerRepository) SaveConsensus(ctx context.Context, consensus []domain.AssetConsensus) error {
	const op = "save consensus"

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(op, uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO asset_consensus (asset_id, week, month, quarter, year, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (asset_id) DO UPDATE
		SET week = EXCLUDED.week,
		    month = EXCLUDED.month,
		    quarter = EXCLUDED.quarter,
		    year = EXCLUDED.year,
		    updated_at = EXCLUDED.updated_at
	`

	for _, c := range consensus {
		_, err := dbTx.ExecContext(ctx, query,
			c.AssetID,
			c.Week.String(),
			c.Month.String(),
			c.Quarter.String(),
			c.Year.String(),
		)
		if err != nil {
			return persistenceError(op, uuid.Nil, fmt.Errorf("failed to upsert consensus for %s: %w", c.AssetID, err))
		}
	}

	if err := dbTx.Commit(); err != nil {
		return persistenceError(op, uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// requireRow turns an update that matched nothing into domain.ErrNotFound
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("portfolio %w", domain.ErrNotFound)
	}
	return nil
}

