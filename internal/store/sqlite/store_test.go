package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

var fixedNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "arb.db"))
	require.NoError(t, err)
	db.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func opportunity(id, symbol string, at time.Time) domain.Opportunity {
	return domain.Opportunity{
		ID:           id,
		Symbol:       symbol,
		Mint:         "mint-" + symbol,
		BuySource:    domain.SourceMeteora,
		SellSource:   domain.SourceJupiter,
		BuyPrice:     decimal.NewFromFloat(250.5),
		SellPrice:    decimal.NewFromFloat(255),
		Size:         decimal.NewFromInt(400),
		ExpectedNet:  decimal.NewFromFloat(5.25),
		PriceImpact:  decimal.NewFromFloat(0.002),
		DiscoveredAt: at,
		ExpiresAt:    at.Add(10 * time.Second),
	}
}

func pnl(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func TestOpen_ReappliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arb.db")
	ctx := context.Background()

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Opportunities().Insert(ctx, opportunity("keep", "NVDAx", fixedNow)))
	require.NoError(t, db.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(ctx))

	got, err := reopened.Opportunities().GetByID(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "NVDAx", got.Symbol)
}

func TestOpportunityStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := db.Opportunities()

	require.NoError(t, store.Insert(ctx, opportunity("o1", "AAPLx", fixedNow.Add(-2*time.Hour))))
	require.NoError(t, store.Insert(ctx, opportunity("o2", "TSLAx", fixedNow.Add(-time.Hour))))
	require.NoError(t, store.Insert(ctx, opportunity("o3", "AAPLx", fixedNow)))

	assert.ErrorIs(t, store.Insert(ctx, opportunity("o1", "AAPLx", fixedNow)), domain.ErrAlreadyExists)

	got, err := store.GetByID(ctx, "o3")
	require.NoError(t, err)
	assert.True(t, got.DiscoveredAt.Equal(fixedNow))
	assert.True(t, got.ExpiresAt.Equal(fixedNow.Add(10*time.Second)))
	assert.True(t, got.BuyPrice.Equal(decimal.NewFromFloat(250.5)))
	assert.Equal(t, domain.SourceMeteora, got.BuySource)

	_, err = store.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	recent, err := store.ListRecent(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "o3", recent[0].ID)
	assert.Equal(t, "o2", recent[1].ID)

	paged, err := store.ListRecent(ctx, domain.ListOpts{Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 2)

	apple, err := store.ListRecent(ctx, domain.ListOpts{Symbol: "AAPLx"})
	require.NoError(t, err)
	assert.Len(t, apple, 2)

	since := fixedNow.Add(-90 * time.Minute)
	windowed, err := store.ListRecent(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	assert.Len(t, windowed, 2)

	require.NoError(t, store.MarkExecuted(ctx, "o2"))
	got, err = store.GetByID(ctx, "o2")
	require.NoError(t, err)
	assert.True(t, got.Executed)
	assert.ErrorIs(t, store.MarkExecuted(ctx, "nope"), domain.ErrNotFound)

	old, err := store.ListBefore(ctx, fixedNow.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, "o1", old[0].ID)

	n, err := store.DeleteBefore(ctx, fixedNow.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestTradeStore_InsertAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	opp := opportunity("t1", "AAPLx", fixedNow)
	require.NoError(t, db.Opportunities().Insert(ctx, opp))

	require.NoError(t, db.Trades().Insert(ctx, domain.TradeRecord{
		Opportunity: opp,
		Result: domain.TradeResult{
			OpportunityID: "t1",
			Partial:       true,
			Path:          domain.ExecPathSequential,
			BuyRef:        "sig-buy",
			Error:         "confirm sell leg: transaction timed out",
			RealizedPnL:   pnl(-10),
			CostIncurred:  decimal.NewFromFloat(0.00001),
			Duration:      3200 * time.Millisecond,
			ExecutedAt:    fixedNow,
		},
	}))

	got, err := db.Opportunities().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Executed)

	trades, err := db.Trades().ListRecent(ctx, domain.ListOpts{Symbol: "AAPLx"})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	r := trades[0].Result
	assert.True(t, r.Partial)
	assert.False(t, r.Success)
	assert.Equal(t, "sig-buy", r.BuyRef)
	assert.Equal(t, 3200*time.Millisecond, r.Duration)
	assert.True(t, r.ExecutedAt.Equal(fixedNow))
	require.NotNil(t, r.RealizedPnL)
	assert.True(t, r.RealizedPnL.Equal(decimal.NewFromInt(-10)))
	assert.Equal(t, "AAPLx", trades[0].Opportunity.Symbol)
}

func TestTradeStore_Aggregates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	trades := db.Trades()

	insert := func(id, symbol string, success bool, realized *decimal.Decimal, at time.Time) {
		t.Helper()
		require.NoError(t, trades.Insert(ctx, domain.TradeRecord{
			Opportunity: opportunity(id, symbol, at),
			Result: domain.TradeResult{
				OpportunityID: id,
				Success:       success,
				Path:          domain.ExecPathAtomic,
				RealizedPnL:   realized,
				CostIncurred:  decimal.NewFromFloat(0.0001),
				ExecutedAt:    at,
			},
		}))
	}
	insert("a", "AAPLx", true, pnl(6), fixedNow.Add(-time.Hour))
	insert("b", "AAPLx", false, pnl(-0.15), fixedNow.Add(-30*time.Minute))
	insert("c", "TSLAx", false, nil, fixedNow)
	insert("d", "AAPLx", false, pnl(-10), fixedNow.AddDate(0, 0, -2))

	loss, err := trades.SumLoss(ctx, fixedNow.Truncate(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, loss.Equal(decimal.NewFromFloat(0.15)), loss.String())

	st, err := trades.AssetStats(ctx, "AAPLx")
	require.NoError(t, err)
	assert.Equal(t, "AAPLx", st.Symbol)
	assert.EqualValues(t, 3, st.Trades)
	assert.EqualValues(t, 1, st.Successes)
	assert.True(t, st.BestTrade.Equal(decimal.NewFromInt(6)))
	assert.True(t, st.WorstTrade.Equal(decimal.NewFromInt(-10)))

	all, err := trades.AssetStats(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, all.Trades)

	empty, err := trades.AssetStats(ctx, "GOOGLx")
	require.NoError(t, err)
	assert.Zero(t, empty.Trades)
	assert.True(t, empty.TotalProfit.IsZero())

	daily, err := trades.DailyMetrics(ctx, 7)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2026-03-10", daily[0].Date)
	assert.EqualValues(t, 3, daily[0].Trades)
	assert.EqualValues(t, 1, daily[0].Successes)
	assert.True(t, daily[0].Volume.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, "2026-03-08", daily[1].Date)

	today, err := trades.DailyMetrics(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, today, 1)

	old, err := trades.ListBefore(ctx, fixedNow.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "d", old[0].Result.OpportunityID)

	n, err := trades.DeleteBefore(ctx, fixedNow.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestAuditStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	audit := db.Audit()

	require.NoError(t, audit.Log(ctx, "opportunity_recorded", map[string]any{"id": "o1"}))
	require.NoError(t, audit.Log(ctx, "trade_settled", map[string]any{"id": "o1", "success": true}))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10, Symbol: "ignored"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "trade_settled", entries[0].Event)
	assert.Equal(t, true, entries[0].Detail["success"])
	assert.True(t, entries[0].CreatedAt.Equal(fixedNow))
}

func TestListQuery(t *testing.T) {
	q, args := listQuery("SELECT * FROM trades", "executed_ms", domain.ListOpts{Offset: 5})
	assert.Equal(t, "SELECT * FROM trades ORDER BY executed_ms DESC, id DESC LIMIT ? OFFSET ?", q)
	assert.Equal(t, []any{-1, 5}, args)
}
