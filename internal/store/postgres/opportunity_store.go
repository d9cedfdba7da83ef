package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, symbol, mint, buy_source, sell_source,
	buy_price, sell_price, size_usd, expected_profit, price_impact,
	discovered_at, expires_at, executed`

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var (
		o                                      domain.Opportunity
		buySource, sellSource                  string
		buy, sell, size, expected, priceImpact float64
	)
	if err := row.Scan(
		&o.ID, &o.Symbol, &o.Mint, &buySource, &sellSource,
		&buy, &sell, &size, &expected, &priceImpact,
		&o.DiscoveredAt, &o.ExpiresAt, &o.Executed,
	); err != nil {
		return domain.Opportunity{}, err
	}
	o.BuySource = domain.SourceID(buySource)
	o.SellSource = domain.SourceID(sellSource)
	o.BuyPrice = decimal.NewFromFloat(buy)
	o.SellPrice = decimal.NewFromFloat(sell)
	o.Size = decimal.NewFromFloat(size)
	o.ExpectedNet = decimal.NewFromFloat(expected)
	o.PriceImpact = decimal.NewFromFloat(priceImpact)
	return o, nil
}

func collectOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	defer rows.Close()
	var out []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Insert stores a newly discovered opportunity. A duplicate id returns
// domain.ErrAlreadyExists.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, symbol, mint, buy_source, sell_source,
			buy_price, sell_price, size_usd, expected_profit, price_impact,
			discovered_at, expires_at, executed
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		) ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Symbol, opp.Mint, string(opp.BuySource), string(opp.SellSource),
		opp.BuyPrice.InexactFloat64(), opp.SellPrice.InexactFloat64(),
		opp.Size.InexactFloat64(), opp.ExpectedNet.InexactFloat64(), opp.PriceImpact.InexactFloat64(),
		opp.DiscoveredAt, opp.ExpiresAt, opp.Executed,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// GetByID returns a single opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+oppSelectCols+` FROM opportunities WHERE id = $1`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// MarkExecuted sets the executed flag.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE opportunities SET executed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark opportunity executed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns opportunities newest first, filtered by opts.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	q := newListQuery(`SELECT `+oppSelectCols+` FROM opportunities`, "discovered_at", opts)
	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	out, err := collectOpportunities(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities: %w", err)
	}
	return out, nil
}

// ListBefore returns every opportunity discovered before the cutoff, oldest
// first, for archiving.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+oppSelectCols+` FROM opportunities WHERE discovered_at < $1 ORDER BY discovered_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before: %w", err)
	}
	out, err := collectOpportunities(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities before: %w", err)
	}
	return out, nil
}

// DeleteBefore removes opportunities discovered before the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE discovered_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before: %w", err)
	}
	return tag.RowsAffected(), nil
}
