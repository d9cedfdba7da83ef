package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

var _ domain.TradeStore = (*TradeStore)(nil)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `opportunity_id, symbol, buy_source, sell_source,
	buy_price, sell_price, size_usd, expected_profit,
	success, partial, path, buy_ref, sell_ref, bundle_id,
	realized_profit, error, cost_incurred, duration_ms, executed_at`

func scanTrades(rows pgx.Rows) ([]domain.TradeRecord, error) {
	defer rows.Close()
	var out []domain.TradeRecord
	for rows.Next() {
		var (
			rec                         domain.TradeRecord
			buySource, sellSource, path string
			buy, sell, size, expected   float64
			realized                    *float64
			cost                        float64
			durationMs                  int64
		)
		r := &rec.Result
		if err := rows.Scan(
			&r.OpportunityID, &rec.Opportunity.Symbol, &buySource, &sellSource,
			&buy, &sell, &size, &expected,
			&r.Success, &r.Partial, &path, &r.BuyRef, &r.SellRef, &r.BundleID,
			&realized, &r.Error, &cost, &durationMs, &r.ExecutedAt,
		); err != nil {
			return nil, err
		}
		rec.Opportunity.ID = r.OpportunityID
		rec.Opportunity.BuySource = domain.SourceID(buySource)
		rec.Opportunity.SellSource = domain.SourceID(sellSource)
		rec.Opportunity.BuyPrice = decimal.NewFromFloat(buy)
		rec.Opportunity.SellPrice = decimal.NewFromFloat(sell)
		rec.Opportunity.Size = decimal.NewFromFloat(size)
		rec.Opportunity.ExpectedNet = decimal.NewFromFloat(expected)
		rec.Opportunity.Executed = true
		r.Path = domain.ExecPath(path)
		if realized != nil {
			d := decimal.NewFromFloat(*realized)
			r.RealizedPnL = &d
		}
		r.CostIncurred = decimal.NewFromFloat(cost)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Insert stores a settled trade and marks its opportunity executed in the
// same transaction.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const insert = `
		INSERT INTO trades (
			opportunity_id, symbol, buy_source, sell_source,
			buy_price, sell_price, size_usd, expected_profit,
			success, partial, path, buy_ref, sell_ref, bundle_id,
			realized_profit, error, cost_incurred, duration_ms, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19
		)`

	o, r := rec.Opportunity, rec.Result
	var realized *float64
	if r.RealizedPnL != nil {
		v := r.RealizedPnL.InexactFloat64()
		realized = &v
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin insert trade %s: %w", r.OpportunityID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insert,
		r.OpportunityID, o.Symbol, string(o.BuySource), string(o.SellSource),
		o.BuyPrice.InexactFloat64(), o.SellPrice.InexactFloat64(),
		o.Size.InexactFloat64(), o.ExpectedNet.InexactFloat64(),
		r.Success, r.Partial, string(r.Path), r.BuyRef, r.SellRef, r.BundleID,
		realized, r.Error, r.CostIncurred.InexactFloat64(), r.Duration.Milliseconds(), r.ExecutedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", r.OpportunityID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE opportunities SET executed = TRUE WHERE id = $1`, r.OpportunityID); err != nil {
		return fmt.Errorf("postgres: mark opportunity executed %s: %w", r.OpportunityID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit trade %s: %w", r.OpportunityID, err)
	}
	return nil
}

// ListRecent returns trades newest first, filtered by opts.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	q := newListQuery(`SELECT `+tradeSelectCols+` FROM trades`, "executed_at", opts)
	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return out, nil
}

// ListBefore returns every trade executed before the cutoff, oldest first.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE executed_at < $1 ORDER BY executed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	out, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before: %w", err)
	}
	return out, nil
}

// SumLoss returns the absolute sum of negative realized profit since the
// given time.
func (s *TradeStore) SumLoss(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var loss float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(-realized_profit), 0)
		FROM trades
		WHERE executed_at >= $1 AND realized_profit < 0`, since).Scan(&loss)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum loss: %w", err)
	}
	return decimal.NewFromFloat(loss), nil
}

// AssetStats aggregates realized results for one symbol, or all symbols when
// symbol is empty.
func (s *TradeStore) AssetStats(ctx context.Context, symbol string) (domain.AssetStats, error) {
	st := domain.AssetStats{Symbol: symbol}
	var total, avg, best, worst float64
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COALESCE(SUM(realized_profit), 0),
			COALESCE(AVG(realized_profit), 0),
			COALESCE(MAX(realized_profit), 0),
			COALESCE(MIN(realized_profit), 0)
		FROM trades
		WHERE ($1 = '' OR symbol = $1)`, symbol,
	).Scan(&st.Trades, &st.Successes, &total, &avg, &best, &worst)
	if err != nil {
		return domain.AssetStats{}, fmt.Errorf("postgres: asset stats %s: %w", symbol, err)
	}
	st.TotalProfit = decimal.NewFromFloat(total)
	st.AvgProfit = decimal.NewFromFloat(avg)
	st.BestTrade = decimal.NewFromFloat(best)
	st.WorstTrade = decimal.NewFromFloat(worst)
	return st, nil
}

// DailyMetrics returns one row per UTC day that saw trades, covering the
// last days days including today, newest first.
func (s *TradeStore) DailyMetrics(ctx context.Context, days int) ([]domain.DailyMetrics, error) {
	if days < 1 {
		days = 1
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	rows, err := s.pool.Query(ctx, `
		SELECT
			to_char(date_trunc('day', executed_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COALESCE(SUM(size_usd), 0),
			COALESCE(SUM(realized_profit), 0),
			COALESCE(SUM(cost_incurred), 0)
		FROM trades
		WHERE executed_at >= $1
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: daily metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyMetrics
	for rows.Next() {
		var (
			m                   domain.DailyMetrics
			volume, profit, gas float64
		)
		if err := rows.Scan(&m.Date, &m.Trades, &m.Successes, &volume, &profit, &gas); err != nil {
			return nil, fmt.Errorf("postgres: scan daily metrics: %w", err)
		}
		m.Volume = decimal.NewFromFloat(volume)
		m.TotalProfit = decimal.NewFromFloat(profit)
		m.TotalGas = decimal.NewFromFloat(gas)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: daily metrics rows: %w", err)
	}
	return out, nil
}

// DeleteBefore removes trades executed before the cutoff.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
