package postgres

// Schema holds the tables of the deal ledger.
// The ledger itself is written by the API that records deals; this engine only maintains
// the derived columns (profit, success, rating_number, closed, succeeded) and the catalog prices.
const Schema = `
CREATE TABLE IF NOT EXISTS assets (
    id            TEXT PRIMARY KEY,
    symbol        TEXT NOT NULL DEFAULT '',
    logo          TEXT NOT NULL DEFAULT '',
    current_price NUMERIC NOT NULL DEFAULT 0,
    market_cap    NUMERIC NOT NULL DEFAULT 0,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS portfolios (
    id            UUID PRIMARY KEY,
    owner_id      UUID NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    profit        NUMERIC NOT NULL DEFAULT 0,
    success       INTEGER NOT NULL DEFAULT 0 CHECK (success BETWEEN 0 AND 100),
    rating_number INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS portfolio_holdings (
    portfolio_id UUID NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
    asset_id     TEXT NOT NULL,
    count        NUMERIC NOT NULL DEFAULT 0,
    PRIMARY KEY (portfolio_id, asset_id)
);

CREATE TABLE IF NOT EXISTS deals (
    seq          BIGSERIAL UNIQUE,
    id           UUID PRIMARY KEY,
    portfolio_id UUID NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
    owner_id     UUID NOT NULL,
    asset_id     TEXT NOT NULL,
    asset_symbol TEXT NOT NULL DEFAULT '',
    asset_logo   TEXT NOT NULL DEFAULT '',
    asset_price  NUMERIC NOT NULL,
    type         TEXT NOT NULL CHECK (type IN ('buy', 'sell')),
    forecast     NUMERIC NOT NULL,
    horizon      TEXT NOT NULL CHECK (horizon IN ('week', 'month', 'quarter', 'year')),
    created_at   TIMESTAMPTZ NOT NULL,
    count        NUMERIC NOT NULL,
    sum          NUMERIC NOT NULL,
    closed       BOOLEAN NOT NULL DEFAULT FALSE,
    succeeded    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_deals_portfolio ON deals(portfolio_id, seq);
CREATE INDEX IF NOT EXISTS idx_deals_open ON deals(portfolio_id) WHERE NOT closed;

CREATE TABLE IF NOT EXISTS profit_points (
    portfolio_id UUID NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
    date         TIMESTAMPTZ NOT NULL,
    value        NUMERIC NOT NULL,
    PRIMARY KEY (portfolio_id, date)
);

CREATE TABLE IF NOT EXISTS asset_consensus (
    asset_id   TEXT PRIMARY KEY,
    week       NUMERIC NOT NULL DEFAULT 0,
    month      NUMERIC NOT NULL DEFAULT 0,
    quarter    NUMERIC NOT NULL DEFAULT 0,
    year       NUMERIC NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
