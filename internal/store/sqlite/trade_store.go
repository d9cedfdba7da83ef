package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

var _ domain.TradeStore = (*TradeStore)(nil)

// TradeStore implements domain.TradeStore on SQLite.
type TradeStore struct {
	db  *sql.DB
	now func() time.Time
}

const tradeCols = `opportunity_id, symbol, buy_source, sell_source,
	buy_price, sell_price, size_usd, expected_profit,
	success, partial, path, buy_ref, sell_ref, bundle_id,
	realized_profit, error, cost_incurred, duration_ms, executed_ms`

func (s *TradeStore) query(ctx context.Context, q string, args ...any) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var (
			rec                         domain.TradeRecord
			buySource, sellSource, path string
			buy, sell, size, expected   float64
			realized                    sql.NullFloat64
			cost                        float64
			durationMs, executedMs      int64
		)
		r := &rec.Result
		if err := rows.Scan(
			&r.OpportunityID, &rec.Opportunity.Symbol, &buySource, &sellSource,
			&buy, &sell, &size, &expected,
			&r.Success, &r.Partial, &path, &r.BuyRef, &r.SellRef, &r.BundleID,
			&realized, &r.Error, &cost, &durationMs, &executedMs,
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
		if realized.Valid {
			d := decimal.NewFromFloat(realized.Float64)
			r.RealizedPnL = &d
		}
		r.CostIncurred = decimal.NewFromFloat(cost)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.ExecutedAt = fromMillis(executedMs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Insert stores a settled trade and marks its opportunity executed in one
// transaction.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	o, r := rec.Opportunity, rec.Result
	var realized sql.NullFloat64
	if r.RealizedPnL != nil {
		realized = sql.NullFloat64{Float64: r.RealizedPnL.InexactFloat64(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin insert trade %s: %w", r.OpportunityID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO trades (`+tradeCols+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OpportunityID, o.Symbol, string(o.BuySource), string(o.SellSource),
		o.BuyPrice.InexactFloat64(), o.SellPrice.InexactFloat64(),
		o.Size.InexactFloat64(), o.ExpectedNet.InexactFloat64(),
		r.Success, r.Partial, string(r.Path), r.BuyRef, r.SellRef, r.BundleID,
		realized, r.Error, r.CostIncurred.InexactFloat64(), r.Duration.Milliseconds(), toMillis(r.ExecutedAt),
	); err != nil {
		return fmt.Errorf("sqlite: insert trade %s: %w", r.OpportunityID, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE opportunities SET executed = 1 WHERE id = ?`, r.OpportunityID); err != nil {
		return fmt.Errorf("sqlite: mark opportunity executed %s: %w", r.OpportunityID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit trade %s: %w", r.OpportunityID, err)
	}
	return nil
}

// ListRecent returns trades newest first, filtered by opts.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	q, args := listQuery(`SELECT `+tradeCols+` FROM trades`, "executed_ms", opts)
	out, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	return out, nil
}

// ListBefore returns trades executed before the cutoff, oldest first.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	out, err := s.query(ctx,
		`SELECT `+tradeCols+` FROM trades WHERE executed_ms < ? ORDER BY executed_ms ASC, id ASC`, toMillis(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades before: %w", err)
	}
	return out, nil
}

// SumLoss returns the absolute sum of negative realized profit since the
// given time.
func (s *TradeStore) SumLoss(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var loss float64
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(-realized_profit), 0)
FROM trades
WHERE executed_ms >= ? AND realized_profit < 0`, toMillis(since)).Scan(&loss)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlite: sum loss: %w", err)
	}
	return decimal.NewFromFloat(loss), nil
}

// AssetStats aggregates realized results for one symbol, or every symbol when
// symbol is empty.
func (s *TradeStore) AssetStats(ctx context.Context, symbol string) (domain.AssetStats, error) {
	st := domain.AssetStats{Symbol: symbol}
	var total, avg, best, worst float64
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(realized_profit), 0),
  COALESCE(AVG(realized_profit), 0),
  COALESCE(MAX(realized_profit), 0),
  COALESCE(MIN(realized_profit), 0)
FROM trades
WHERE (? = '' OR symbol = ?)`, symbol, symbol,
	).Scan(&st.Trades, &st.Successes, &total, &avg, &best, &worst)
	if err != nil {
		return domain.AssetStats{}, fmt.Errorf("sqlite: asset stats %s: %w", symbol, err)
	}
	st.TotalProfit = decimal.NewFromFloat(total)
	st.AvgProfit = decimal.NewFromFloat(avg)
	st.BestTrade = decimal.NewFromFloat(best)
	st.WorstTrade = decimal.NewFromFloat(worst)
	return st, nil
}

// DailyMetrics returns one row per UTC day that saw trades within the last
// days days, newest first.
func (s *TradeStore) DailyMetrics(ctx context.Context, days int) ([]domain.DailyMetrics, error) {
	if days < 1 {
		days = 1
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	rows, err := s.db.QueryContext(ctx, `
SELECT
  strftime('%Y-%m-%d', executed_ms / 1000, 'unixepoch') AS day,
  COUNT(*),
  COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(size_usd), 0),
  COALESCE(SUM(realized_profit), 0),
  COALESCE(SUM(cost_incurred), 0)
FROM trades
WHERE executed_ms >= ?
GROUP BY day
ORDER BY day DESC`, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("sqlite: daily metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyMetrics
	for rows.Next() {
		var (
			m                   domain.DailyMetrics
			volume, profit, gas float64
		)
		if err := rows.Scan(&m.Date, &m.Trades, &m.Successes, &volume, &profit, &gas); err != nil {
			return nil, fmt.Errorf("sqlite: scan daily metrics: %w", err)
		}
		m.Volume = decimal.NewFromFloat(volume)
		m.TotalProfit = decimal.NewFromFloat(profit)
		m.TotalGas = decimal.NewFromFloat(gas)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: daily metrics rows: %w", err)
	}
	return out, nil
}

// DeleteBefore removes trades executed before the cutoff.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE executed_ms < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete trades before: %w", err)
	}
	return res.RowsAffected()
}
