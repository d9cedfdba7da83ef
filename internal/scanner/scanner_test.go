package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// MockRecorder is a mock implementation of Recorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordOpportunity(ctx context.Context, opp domain.Opportunity) error {
	args := m.Called(ctx, opp)
	return args.Error(0)
}

type stubQuotes struct {
	byMint  map[string][]domain.Quote
	fetched []string
}

func (s *stubQuotes) FetchAll(_ context.Context, asset domain.Asset) []domain.Quote {
	s.fetched = append(s.fetched, asset.Symbol)
	return s.byMint[asset.Mint]
}

type stubBalance struct {
	amount decimal.Decimal
	err    error
}

func (s stubBalance) QuoteBalance(context.Context) (decimal.Decimal, error) { return s.amount, s.err }

var d = decimal.RequireFromString

func q(src domain.SourceID, price string) domain.Quote {
	return domain.Quote{Source: src, Price: d(price), Liquidity: d("100000")}
}

func testParams() Params {
	p := DefaultParams()
	p.MinProfitUSD = d("1")
	return p
}

func newScanner(quotes QuoteSource, balance BalanceSource, rec Recorder, p Params) *Scanner {
	s := New(quotes, balance, rec, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func collect(t *testing.T, seq func(func(domain.Opportunity, error) bool)) ([]domain.Opportunity, error) {
	t.Helper()
	var out []domain.Opportunity
	for opp, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, opp)
	}
	return out, nil
}

func TestScan_TwoPercentSpreadEmitsOpportunity(t *testing.T) {
	asset := domain.Asset{Symbol: "WIF", Mint: "wif"}
	quotes := &stubQuotes{byMint: map[string][]domain.Quote{
		"wif": {q(domain.SourceJupiter, "1.00"), q(domain.SourceOrca, "1.02")},
	}}
	rec := new(MockRecorder)
	rec.On("RecordOpportunity", mock.Anything, mock.Anything).Return(nil).Once()

	s := newScanner(quotes, stubBalance{amount: d("1000")}, rec, testParams())
	opps, err := collect(t, s.Scan(context.Background(), []domain.Asset{asset}))
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.SourceJupiter, opp.BuySource)
	assert.Equal(t, domain.SourceOrca, opp.SellSource)
	assert.True(t, opp.BuyPrice.LessThan(opp.SellPrice))
	assert.True(t, opp.Size.Equal(d("100")), "50 misses the $1 floor, 100 clears it: got %s", opp.Size)
	assert.InDelta(t, 1.4751, opp.ExpectedNet.InexactFloat64(), 0.001)
	assert.True(t, opp.PriceImpact.Equal(d("0.0002")))
	assert.Equal(t, opp.DiscoveredAt.Add(10*time.Second), opp.ExpiresAt)
	assert.True(t, opp.IsValid(opp.DiscoveredAt.Add(9*time.Second)))
	assert.False(t, opp.IsValid(opp.ExpiresAt))
	assert.NotEmpty(t, opp.ID)

	rec.AssertExpectations(t)
}

func TestScan_BelowThresholdEmitsNothing(t *testing.T) {
	asset := domain.Asset{Symbol: "WIF", Mint: "wif"}
	quotes := &stubQuotes{byMint: map[string][]domain.Quote{
		"wif": {q(domain.SourceJupiter, "1.000"), q(domain.SourceRaydium, "1.001")},
	}}
	rec := new(MockRecorder)

	s := newScanner(quotes, stubBalance{amount: d("1000")}, rec, testParams())
	opps, err := collect(t, s.Scan(context.Background(), []domain.Asset{asset}))
	require.NoError(t, err)
	assert.Empty(t, opps)
	rec.AssertNotCalled(t, "RecordOpportunity", mock.Anything, mock.Anything)
}

func TestScan_AtMostOnePerAsset(t *testing.T) {
	assets := []domain.Asset{{Symbol: "A", Mint: "a"}, {Symbol: "B", Mint: "b"}, {Symbol: "C", Mint: "c"}}
	quotes := &stubQuotes{byMint: map[string][]domain.Quote{
		"a": {q(domain.SourceJupiter, "1.00"), q(domain.SourceRaydium, "1.02"), q(domain.SourceOrca, "1.03")},
		"b": {q(domain.SourceJupiter, "1.00")},
		"c": {q(domain.SourceJupiter, "2.00"), q(domain.SourceMeteora, "2.05")},
	}}
	rec := new(MockRecorder)
	rec.On("RecordOpportunity", mock.Anything, mock.Anything).Return(errors.New("db down"))

	s := newScanner(quotes, stubBalance{amount: d("1000")}, rec, testParams())
	opps, err := collect(t, s.Scan(context.Background(), assets))
	require.NoError(t, err)
	require.Len(t, opps, 2, "persistence failure does not drop the opportunity")

	assert.Equal(t, "A", opps[0].Symbol)
	assert.Equal(t, domain.SourceJupiter, opps[0].BuySource)
	assert.Equal(t, domain.SourceOrca, opps[0].SellSource, "widest pair wins")
	assert.Equal(t, "C", opps[1].Symbol)
	rec.AssertNumberOfCalls(t, "RecordOpportunity", 2)
}

func TestScan_IsLazy(t *testing.T) {
	assets := []domain.Asset{{Symbol: "A", Mint: "a"}, {Symbol: "B", Mint: "b"}}
	quotes := &stubQuotes{byMint: map[string][]domain.Quote{
		"a": {q(domain.SourceJupiter, "1.00"), q(domain.SourceOrca, "1.02")},
		"b": {q(domain.SourceJupiter, "1.00"), q(domain.SourceOrca, "1.02")},
	}}
	rec := new(MockRecorder)
	rec.On("RecordOpportunity", mock.Anything, mock.Anything).Return(nil)

	s := newScanner(quotes, stubBalance{amount: d("1000")}, rec, testParams())
	seq := s.Scan(context.Background(), assets)
	for range seq {
		break
	}
	assert.Equal(t, []string{"A"}, quotes.fetched, "second asset never fetched")

	for range seq {
	}
	assert.Equal(t, []string{"A", "A", "B"}, quotes.fetched, "sequence restarts on a new range")
}

func TestScan_CycleErrors(t *testing.T) {
	rec := new(MockRecorder)
	asset := domain.Asset{Symbol: "A", Mint: "a"}

	t.Run("balance unavailable", func(t *testing.T) {
		s := newScanner(&stubQuotes{}, stubBalance{err: errors.New("rpc down")}, rec, testParams())
		_, err := collect(t, s.Scan(context.Background(), []domain.Asset{asset}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rpc down")
	})

	t.Run("no quotes anywhere", func(t *testing.T) {
		s := newScanner(&stubQuotes{}, stubBalance{amount: d("100")}, rec, testParams())
		_, err := collect(t, s.Scan(context.Background(), []domain.Asset{asset}))
		assert.ErrorIs(t, err, domain.ErrNoQuotes)
	})
}

func TestBestPair_TiesKeepFirstPair(t *testing.T) {
	quotes := []domain.Quote{q(domain.SourceJupiter, "1.00"), q(domain.SourceRaydium, "1.02"), q(domain.SourceOrca, "1.00")}
	buy, sell, diff, ok := BestPair(quotes, d("0.7"))
	require.True(t, ok)
	assert.Equal(t, domain.SourceJupiter, buy.Source)
	assert.Equal(t, domain.SourceRaydium, sell.Source)
	assert.True(t, diff.Equal(d("2")))

	_, _, _, ok = BestPair([]domain.Quote{q(domain.SourceJupiter, "1"), q(domain.SourceOrca, "1")}, d("0.7"))
	assert.False(t, ok)
}

func TestImpact_MonotonicBands(t *testing.T) {
	p := DefaultParams()
	assert.True(t, p.Impact(d("50")).Equal(d("0.0001")))
	assert.True(t, p.Impact(d("100")).Equal(d("0.0001")))
	assert.True(t, p.Impact(d("1000")).Equal(d("0.0005")))
	assert.True(t, p.Impact(d("2000")).Equal(d("0.0005")), "linear segment never undercuts the last band")
	assert.True(t, p.Impact(d("100000")).Equal(d("0.01")))

	prev := decimal.Zero
	for size := int64(10); size <= 200_000; size += 490 {
		imp := p.Impact(decimal.NewFromInt(size))
		assert.True(t, imp.GreaterThanOrEqual(prev), "impact decreased at %d", size)
		prev = imp
	}
}

func TestMaxNotionalAndLadder(t *testing.T) {
	p := DefaultParams()
	assert.True(t, p.MaxNotional(d("1000"), d("100000"), d("100000"), decimal.Zero).Equal(d("500")))
	assert.True(t, p.MaxNotional(d("1000"), d("2000"), d("90000"), decimal.Zero).Equal(d("200")))
	assert.True(t, p.MaxNotional(d("1000"), d("100000"), d("100000"), d("150")).Equal(d("150")))
	assert.True(t, p.MaxNotional(d("1000000"), d("1e9"), d("1e9"), decimal.Zero).Equal(d("5000")))

	assert.Len(t, p.Ladder(d("99")), 7)
	assert.True(t, p.Ladder(d("499"))[0].Equal(d("20")))
	assert.True(t, p.Ladder(d("500"))[5].Equal(d("2000")))
}

func TestSize_ImpactCapRejects(t *testing.T) {
	p := testParams()
	p.MaxPriceImpact = d("0.0001")
	_, ok := p.Size(d("1.00"), d("1.02"), d("1000"), d("500"))
	assert.False(t, ok)

	p = testParams()
	_, ok = p.Size(d("1.00"), d("1.02"), d("1000"), d("40"))
	assert.False(t, ok, "no ladder step fits under the max notional")
}
