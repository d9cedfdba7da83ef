package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// OpportunityStore implements domain.OpportunityStore on SQLite.
type OpportunityStore struct {
	db *sql.DB
}

const oppCols = `id, symbol, mint, buy_source, sell_source,
	buy_price, sell_price, size_usd, expected_profit, price_impact,
	discovered_ms, expires_ms, executed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (domain.Opportunity, error) {
	var (
		o                                      domain.Opportunity
		buySource, sellSource                  string
		buy, sell, size, expected, priceImpact float64
		discovered, expires                    int64
	)
	if err := row.Scan(
		&o.ID, &o.Symbol, &o.Mint, &buySource, &sellSource,
		&buy, &sell, &size, &expected, &priceImpact,
		&discovered, &expires, &o.Executed,
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
	o.DiscoveredAt = fromMillis(discovered)
	o.ExpiresAt = fromMillis(expires)
	return o, nil
}

func (s *OpportunityStore) query(ctx context.Context, q string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
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

// Insert stores an opportunity. A duplicate id returns domain.ErrAlreadyExists.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO opportunities (`+oppCols+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		opp.ID, opp.Symbol, opp.Mint, string(opp.BuySource), string(opp.SellSource),
		opp.BuyPrice.InexactFloat64(), opp.SellPrice.InexactFloat64(),
		opp.Size.InexactFloat64(), opp.ExpectedNet.InexactFloat64(), opp.PriceImpact.InexactFloat64(),
		toMillis(opp.DiscoveredAt), toMillis(opp.ExpiresAt), opp.Executed,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert opportunity %s: %w", opp.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: insert opportunity %s: %w", opp.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// GetByID returns a single opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+oppCols+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("sqlite: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// MarkExecuted sets the executed flag.
func (s *OpportunityStore) MarkExecuted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE opportunities SET executed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: mark opportunity executed %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListRecent returns opportunities newest first, filtered by opts.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	q, args := listQuery(`SELECT `+oppCols+` FROM opportunities`, "discovered_ms", opts)
	out, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list opportunities: %w", err)
	}
	return out, nil
}

// ListBefore returns opportunities discovered before the cutoff, oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	out, err := s.query(ctx,
		`SELECT `+oppCols+` FROM opportunities WHERE discovered_ms < ? ORDER BY discovered_ms ASC`, toMillis(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list opportunities before: %w", err)
	}
	return out, nil
}

// DeleteBefore removes opportunities discovered before the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM opportunities WHERE discovered_ms < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete opportunities before: %w", err)
	}
	return res.RowsAffected()
}
