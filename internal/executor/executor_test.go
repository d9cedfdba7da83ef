package executor

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
	"github.com/alanyoungcy/arbengine/internal/scanner"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

// --- mocks -----------------------------------------------------------------

type MockQuoter struct{ mock.Mock }

func (m *MockQuoter) Fresh(ctx context.Context, source domain.SourceID, asset domain.Asset) (domain.Quote, bool) {
	args := m.Called(ctx, source, asset.Symbol)
	return args.Get(0).(domain.Quote), args.Bool(1)
}

func (m *MockQuoter) GetQuote(ctx context.Context, source domain.SourceID, asset domain.Asset) (domain.Quote, bool) {
	args := m.Called(ctx, source, asset.Symbol)
	return args.Get(0).(domain.Quote), args.Bool(1)
}

type MockRisk struct{ mock.Mock }

func (m *MockRisk) BeforeExecute() bool { return m.Called().Bool(0) }

func (m *MockRisk) RecordLoss(ctx context.Context, amount decimal.Decimal) {
	m.Called(ctx, amount)
}

type MockBalances struct{ mock.Mock }

func (m *MockBalances) QuoteBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockBalances) FeeBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockBalances) TokenBalance(ctx context.Context, mint string) (uint64, error) {
	args := m.Called(ctx, mint)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockBalances) Holdings(ctx context.Context) ([]domain.Holding, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Holding), args.Error(1)
}

type MockSwaps struct{ mock.Mock }

func (m *MockSwaps) BuildSwap(ctx context.Context, req venue.SwapRequest) (venue.SwapTx, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(venue.SwapTx), args.Error(1)
}

type stubSigner struct{}

func (stubSigner) PublicKey() string { return "wallet" }

func (stubSigner) SignTransaction(tx []byte) ([]byte, error) {
	return append([]byte("signed:"), tx...), nil
}

type MockTxs struct{ mock.Mock }

func (m *MockTxs) SendTransaction(ctx context.Context, tx []byte) (string, error) {
	args := m.Called(ctx, string(tx))
	return args.String(0), args.Error(1)
}

func (m *MockTxs) WaitForConfirmation(ctx context.Context, sig string, attempts int, interval time.Duration) error {
	return m.Called(ctx, sig).Error(0)
}

type MockBundles struct{ mock.Mock }

func (m *MockBundles) SendBundle(ctx context.Context, txs [][]byte) (string, error) {
	args := m.Called(ctx, len(txs))
	return args.String(0), args.Error(1)
}

func (m *MockBundles) WaitForBundle(ctx context.Context, id string, timeout, interval time.Duration) (domain.BundleStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.BundleStatus), args.Error(1)
}

type MockRecorder struct{ mock.Mock }

func (m *MockRecorder) RecordTrade(ctx context.Context, rec domain.TradeRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// --- fixtures --------------------------------------------------------------

var (
	usdcMint = "USDC"
	tsla     = domain.Asset{Symbol: "TSLAx", Mint: "TSLA", Decimals: 8}
)

type harness struct {
	quotes   *MockQuoter
	risk     *MockRisk
	balances *MockBalances
	swaps    *MockSwaps
	txs      *MockTxs
	bundles  *MockBundles
	recorder *MockRecorder
	orch     *Orchestrator
}

func newHarness(t *testing.T, withBundles bool) *harness {
	t.Helper()
	h := &harness{
		quotes:   new(MockQuoter),
		risk:     new(MockRisk),
		balances: new(MockBalances),
		swaps:    new(MockSwaps),
		txs:      new(MockTxs),
		bundles:  new(MockBundles),
		recorder: new(MockRecorder),
	}
	deps := Deps{
		Quotes:   h.quotes,
		Risk:     h.risk,
		Balances: h.balances,
		Swaps:    h.swaps,
		Signer:   stubSigner{},
		Txs:      h.txs,
		Recorder: h.recorder,
	}
	if withBundles {
		deps.Bundles = h.bundles
	}
	cfg := DefaultConfig()
	cfg.QuoteMint = usdcMint
	h.orch = New(cfg, scanner.DefaultParams(), []domain.Asset{tsla}, deps,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.orch.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func (h *harness) assertAll(t *testing.T) {
	t.Helper()
	h.quotes.AssertExpectations(t)
	h.risk.AssertExpectations(t)
	h.balances.AssertExpectations(t)
	h.swaps.AssertExpectations(t)
	h.txs.AssertExpectations(t)
	h.bundles.AssertExpectations(t)
	h.recorder.AssertExpectations(t)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decEq(want string) any {
	return mock.MatchedBy(func(x decimal.Decimal) bool { return x.Equal(d(want)) })
}

func opportunity(buy, sell, size, expected string) domain.Opportunity {
	now := time.Now()
	return domain.Opportunity{
		ID:           "opp-" + size + "-" + expected,
		Symbol:       tsla.Symbol,
		Mint:         tsla.Mint,
		BuySource:    domain.SourceRaydium,
		SellSource:   domain.SourceOrca,
		BuyPrice:     d(buy),
		SellPrice:    d(sell),
		Size:         d(size),
		ExpectedNet:  d(expected),
		DiscoveredAt: now,
		ExpiresAt:    now.Add(10 * time.Second),
	}
}

func (h *harness) expectReverify(buy, sell string) {
	h.risk.On("BeforeExecute").Return(true).Once()
	h.quotes.On("Fresh", mock.Anything, domain.SourceRaydium, tsla.Symbol).
		Return(domain.Quote{Price: d(buy)}, true).Once()
	h.quotes.On("Fresh", mock.Anything, domain.SourceOrca, tsla.Symbol).
		Return(domain.Quote{Price: d(sell)}, true).Once()
}

func isBuy(amount uint64) any {
	return mock.MatchedBy(func(r venue.SwapRequest) bool {
		return r.InputMint == usdcMint && r.OutputMint == tsla.Mint && r.Amount == amount &&
			r.Venue == domain.SourceRaydium && r.SlippageBps == 50 && r.UserPublicKey == "wallet"
	})
}

func isSell(amount uint64, tip int64) any {
	return mock.MatchedBy(func(r venue.SwapRequest) bool {
		return r.InputMint == tsla.Mint && r.OutputMint == usdcMint && r.Amount == amount &&
			r.Venue == domain.SourceOrca && r.SlippageBps == 200 && r.TipLamports == tip
	})
}

// --- state machine ---------------------------------------------------------

func TestExecute_ExpiredMakesNoCalls(t *testing.T) {
	h := newHarness(t, false)
	opp := opportunity("100", "102", "100", "1.47")
	opp.ExpiresAt = time.Now().Add(-time.Second)

	res := h.orch.Execute(context.Background(), opp)

	assert.False(t, res.Success)
	assert.Equal(t, "expired", res.Error)
	assert.True(t, res.Loss().IsZero())
	h.risk.AssertNotCalled(t, "BeforeExecute")
	h.recorder.AssertNotCalled(t, "RecordTrade", mock.Anything, mock.Anything)
	assert.Equal(t, int64(1), h.orch.Stats().Rejected)
}

func TestExecute_RiskLimitSkipsReverify(t *testing.T) {
	h := newHarness(t, false)
	h.risk.On("BeforeExecute").Return(false)

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	assert.False(t, res.Success)
	assert.Equal(t, "daily loss limit reached", res.Error)
	h.quotes.AssertNotCalled(t, "Fresh", mock.Anything, mock.Anything, mock.Anything)
	h.recorder.AssertNotCalled(t, "RecordTrade", mock.Anything, mock.Anything)
}

func TestExecute_StaleSpreadAborts(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "100.5")
	h.recorder.On("RecordTrade", mock.Anything, mock.MatchedBy(func(rec domain.TradeRecord) bool {
		return !rec.Result.Success && rec.Opportunity.Executed
	})).Return(nil).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, domain.ErrStaleSpread.Error())
	assert.True(t, res.Loss().IsZero())
	h.balances.AssertNotCalled(t, "FeeBalance", mock.Anything)
	h.risk.AssertNotCalled(t, "RecordLoss", mock.Anything, mock.Anything)
	h.assertAll(t)
}

func TestExecute_InsufficientFeeBalanceAborts(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "102")
	h.balances.On("FeeBalance", mock.Anything).Return(d("0.05"), nil).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.Anything).Return(nil).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, domain.ErrInsufficientBalance.Error())
	h.swaps.AssertNotCalled(t, "BuildSwap", mock.Anything, mock.Anything)
	h.assertAll(t)
}

func TestExecute_SequentialClampsSellToBalance(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "102")
	h.balances.On("FeeBalance", mock.Anything).Return(d("0.5"), nil).Once()
	h.balances.On("QuoteBalance", mock.Anything).Return(d("1000"), nil).Once()
	h.balances.On("TokenBalance", mock.Anything, tsla.Mint).Return(uint64(99_000_000), nil).Once()
	h.balances.On("QuoteBalance", mock.Anything).Return(d("1001.5"), nil).Once()

	h.swaps.On("BuildSwap", mock.Anything, isBuy(100_000_000)).Return(venue.SwapTx{Tx: []byte("buy")}, nil).Once()
	h.swaps.On("BuildSwap", mock.Anything, isSell(99_000_000, 0)).Return(venue.SwapTx{Tx: []byte("sell")}, nil).Once()
	h.txs.On("SendTransaction", mock.Anything, "signed:buy").Return("sig-buy", nil).Once()
	h.txs.On("WaitForConfirmation", mock.Anything, "sig-buy").Return(nil).Once()
	h.txs.On("SendTransaction", mock.Anything, "signed:sell").Return("sig-sell", nil).Once()
	h.txs.On("WaitForConfirmation", mock.Anything, "sig-sell").Return(nil).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.MatchedBy(func(rec domain.TradeRecord) bool {
		return rec.Result.Success && rec.Result.OpportunityID == rec.Opportunity.ID
	})).Return(nil).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.ExecPathSequential, res.Path)
	assert.Equal(t, "sig-buy", res.BuyRef)
	assert.Equal(t, "sig-sell", res.SellRef)
	require.NotNil(t, res.RealizedPnL)
	assert.True(t, res.RealizedPnL.Equal(d("1.497")), res.RealizedPnL.String())
	h.risk.AssertNotCalled(t, "RecordLoss", mock.Anything, mock.Anything)
	h.assertAll(t)
	assert.Equal(t, int64(1), h.orch.Stats().Successes)
}

func TestExecute_SellFailureIsPartial(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "102")
	h.balances.On("FeeBalance", mock.Anything).Return(d("0.5"), nil).Once()
	h.balances.On("QuoteBalance", mock.Anything).Return(d("1000"), nil).Once()
	h.balances.On("TokenBalance", mock.Anything, tsla.Mint).Return(uint64(100_000_000), nil).Once()

	h.swaps.On("BuildSwap", mock.Anything, isBuy(100_000_000)).Return(venue.SwapTx{Tx: []byte("buy")}, nil).Once()
	h.swaps.On("BuildSwap", mock.Anything, isSell(100_000_000, 0)).Return(venue.SwapTx{Tx: []byte("sell")}, nil).Once()
	h.txs.On("SendTransaction", mock.Anything, "signed:buy").Return("sig-buy", nil).Once()
	h.txs.On("WaitForConfirmation", mock.Anything, "sig-buy").Return(nil).Once()
	h.txs.On("SendTransaction", mock.Anything, "signed:sell").Return("sig-sell", nil).Once()
	h.txs.On("WaitForConfirmation", mock.Anything, "sig-sell").Return(domain.ErrTxTimeout).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.MatchedBy(func(rec domain.TradeRecord) bool {
		return rec.Result.Partial
	})).Return(nil).Once()
	h.risk.On("RecordLoss", mock.Anything, decEq("10")).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	assert.False(t, res.Success)
	assert.True(t, res.Partial)
	assert.Equal(t, "sig-buy", res.BuyRef)
	assert.True(t, res.Loss().Equal(d("10")))
	h.assertAll(t)
}

func TestExecute_PartialLossCappedAtSize(t *testing.T) {
	h := newHarness(t, false)
	res := h.orch.partial(domain.ExecPathSequential, "sig", errors.New("x"), d("4"))
	assert.True(t, res.Loss().Equal(d("4")))
}

func TestExecute_BuyTimeoutIsFatal(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "102")
	h.balances.On("FeeBalance", mock.Anything).Return(d("0.5"), nil).Once()
	h.balances.On("QuoteBalance", mock.Anything).Return(d("1000"), nil).Once()
	h.swaps.On("BuildSwap", mock.Anything, isBuy(100_000_000)).Return(venue.SwapTx{Tx: []byte("buy")}, nil).Once()
	h.txs.On("SendTransaction", mock.Anything, "signed:buy").Return("sig-buy", nil).Once()
	h.txs.On("WaitForConfirmation", mock.Anything, "sig-buy").Return(domain.ErrTxTimeout).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.Anything).Return(nil).Once()
	h.risk.On("RecordLoss", mock.Anything, decEq("10")).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	assert.False(t, res.Success)
	assert.False(t, res.Partial)
	assert.True(t, res.CostIncurred.Equal(d("0.005")))
	assert.True(t, res.Loss().Equal(d("10")))
	h.assertAll(t)
}

func TestExecute_SendFailureBeforeCommitAborts(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "102")
	h.balances.On("FeeBalance", mock.Anything).Return(d("0.5"), nil).Once()
	h.balances.On("QuoteBalance", mock.Anything).Return(d("1000"), nil).Once()
	h.swaps.On("BuildSwap", mock.Anything, isBuy(100_000_000)).Return(venue.SwapTx{Tx: []byte("buy")}, nil).Once()
	h.txs.On("SendTransaction", mock.Anything, "signed:buy").Return("", errors.New("preflight failed")).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.Anything).Return(nil).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	assert.False(t, res.Success)
	assert.True(t, res.Loss().IsZero())
	h.risk.AssertNotCalled(t, "RecordLoss", mock.Anything, mock.Anything)
	h.assertAll(t)
}

func TestExecute_PanicIsFatal(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "102")
	h.balances.On("FeeBalance", mock.Anything).Return(d("0.5"), nil).Once()
	h.balances.On("QuoteBalance", mock.Anything).Return(d("1000"), nil).Once()
	h.swaps.On("BuildSwap", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("boom") })
	h.recorder.On("RecordTrade", mock.Anything, mock.Anything).Return(nil).Once()
	h.risk.On("RecordLoss", mock.Anything, decEq("10")).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "102", "100", "1.47"))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panic: boom")
	assert.True(t, res.CostIncurred.Equal(d("0.005")))
}

func TestExecute_DuplicateRejected(t *testing.T) {
	h := newHarness(t, false)
	h.expectReverify("100", "100.5")
	h.risk.On("BeforeExecute").Return(true).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.Anything).Return(nil).Once()

	opp := opportunity("100", "102", "100", "1.47")
	first := h.orch.Execute(context.Background(), opp)
	second := h.orch.Execute(context.Background(), opp)

	assert.Contains(t, first.Error, domain.ErrStaleSpread.Error())
	assert.Equal(t, "opportunity already attempted", second.Error)
	h.recorder.AssertNumberOfCalls(t, "RecordTrade", 1)
}

// --- atomic path -----------------------------------------------------------

func (h *harness) expectAtomicLegs() {
	h.expectReverify("100", "105")
	h.balances.On("FeeBalance", mock.Anything).Return(d("0.5"), nil).Once()
	h.balances.On("QuoteBalance", mock.Anything).Return(d("5000"), nil).Once()
	h.swaps.On("BuildSwap", mock.Anything, isBuy(2_000_000_000)).Return(venue.SwapTx{Tx: []byte("buy")}, nil).Once()
	h.swaps.On("BuildSwap", mock.Anything, isSell(2_000_000_000, 1_000_000)).Return(venue.SwapTx{Tx: []byte("sell")}, nil).Once()
	h.bundles.On("SendBundle", mock.Anything, 2).Return("bundle-1", nil).Once()
}

func TestExecute_AtomicLanded(t *testing.T) {
	h := newHarness(t, true)
	h.expectAtomicLegs()
	h.bundles.On("WaitForBundle", mock.Anything, "bundle-1").
		Return(domain.BundleStatus{ID: "bundle-1", State: domain.BundleLanded, Slot: 9}, nil).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.Anything).Return(nil).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "105", "2000", "80"))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.ExecPathAtomic, res.Path)
	assert.Equal(t, "bundle-1", res.BundleID)
	assert.True(t, res.RealizedPnL.Equal(d("79.85")), res.RealizedPnL.String())
	assert.True(t, res.CostIncurred.Equal(d("0.001")))
	h.txs.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
	h.assertAll(t)
}

func TestExecute_AtomicTimeoutCostsTip(t *testing.T) {
	h := newHarness(t, true)
	h.expectAtomicLegs()
	h.bundles.On("WaitForBundle", mock.Anything, "bundle-1").
		Return(domain.BundleStatus{ID: "bundle-1", State: domain.BundleTimeout}, nil).Once()
	h.recorder.On("RecordTrade", mock.Anything, mock.Anything).Return(nil).Once()
	h.risk.On("RecordLoss", mock.Anything, decEq("0.15")).Once()

	res := h.orch.Execute(context.Background(), opportunity("100", "105", "2000", "80"))

	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrBundleTimeout.Error(), res.Error)
	assert.True(t, res.RealizedPnL.Equal(d("-0.15")))
	h.assertAll(t)
}

func TestExecute_SmallProfitStaysSequentialWithBundles(t *testing.T) {
	h := newHarness(t, true)
	assert.False(t, h.orch.useAtomic(opportunity("100", "102", "100", "49")))
	assert.True(t, h.orch.useAtomic(opportunity("100", "102", "100", "50.01")))
}

func TestTipLamports(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, int64(10_000), h.orch.tipLamports(d("0.001")))
	assert.Equal(t, int64(100_000), h.orch.tipLamports(d("0.1")))
	assert.Equal(t, int64(1_000_000), h.orch.tipLamports(d("80")))
}

// --- rebalance -------------------------------------------------------------

func TestRebalance_SellsHalfUntilTarget(t *testing.T) {
	h := newHarness(t, false)
	other := domain.Asset{Symbol: "NVDAx", Mint: "NVDA", Decimals: 8}
	h.orch.assets[other.Symbol] = other

	h.balances.On("QuoteBalance", mock.Anything).Return(d("5"), nil).Once()
	h.balances.On("Holdings", mock.Anything).Return([]domain.Holding{
		{Mint: "UNKNOWN", Amount: 1_000, Decimals: 6},
		{Mint: tsla.Mint, Amount: 200_000_000, Decimals: 8},
		{Mint: other.Mint, Amount: 500_000_000, Decimals: 8},
	}, nil).Once()
	h.quotes.On("GetQuote", mock.Anything, domain.SourceJupiter, tsla.Symbol).
		Return(domain.Quote{Price: d("100")}, true).Once()
	h.swaps.On("BuildSwap", mock.Anything, mock.MatchedBy(func(r venue.SwapRequest) bool {
		return r.InputMint == tsla.Mint && r.OutputMint == usdcMint && r.Amount == 100_000_000
	})).Return(venue.SwapTx{Tx: []byte("rebal")}, nil).Once()
	h.txs.On("SendTransaction", mock.Anything, "signed:rebal").Return("sig-r", nil).Once()
	h.txs.On("WaitForConfirmation", mock.Anything, "sig-r").Return(nil).Once()

	out, err := h.orch.Rebalance(context.Background(), h.quotes, RebalanceConfig{
		MinQuoteBalanceUSD: d("10"),
		TargetUSD:          d("20"),
		MinValueUSD:        d("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Sold)
	assert.True(t, out.Recovered.Equal(d("100")))
	h.assertAll(t)
}

func TestRebalance_SkipsWhenFunded(t *testing.T) {
	h := newHarness(t, false)
	h.balances.On("QuoteBalance", mock.Anything).Return(d("50"), nil).Once()

	out, err := h.orch.Rebalance(context.Background(), h.quotes, RebalanceConfig{
		MinQuoteBalanceUSD: d("10"), TargetUSD: d("20"), MinValueUSD: d("5"),
	})
	require.NoError(t, err)
	assert.Zero(t, out.Sold)
	h.balances.AssertNotCalled(t, "Holdings", mock.Anything)
}

// --- lock & dedup ----------------------------------------------------------

func TestMemoryLock_Serializes(t *testing.T) {
	l := NewMemoryLock()
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second release is a no-op

	again, err := l.Acquire(context.Background())
	require.NoError(t, err)
	again()
}

type fakeWaiter struct {
	key string
	ttl time.Duration
	err error
}

func (f *fakeWaiter) AcquireWait(_ context.Context, key string, ttl time.Duration) (func(), error) {
	f.key, f.ttl = key, ttl
	if f.err != nil {
		return nil, f.err
	}
	return func() {}, nil
}

func TestDistributedLock(t *testing.T) {
	w := &fakeWaiter{}
	l := NewDistributedLock(w, "arbengine:execution", time.Minute)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release()
	assert.Equal(t, "arbengine:execution", w.key)
	assert.Equal(t, time.Minute, w.ttl)

	w.err = domain.ErrLockHeld
	_, err = l.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestDedup(t *testing.T) {
	now := time.Now()
	dd := NewDedup(time.Minute)
	dd.now = func() time.Time { return now }

	assert.False(t, dd.IsDuplicate("a"))
	assert.True(t, dd.IsDuplicate("a"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, dd.Cleanup())
	assert.False(t, dd.IsDuplicate("a"))
}
