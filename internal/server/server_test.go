package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/ratelimit"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
)

type MockTrades struct{ mock.Mock }

func (m *MockTrades) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]domain.TradeRecord), args.Error(1)
}

func (m *MockTrades) AssetStats(ctx context.Context, symbol string) (domain.AssetStats, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.AssetStats), args.Error(1)
}

func (m *MockTrades) DailyMetrics(ctx context.Context, days int) ([]domain.DailyMetrics, error) {
	args := m.Called(ctx, days)
	return args.Get(0).([]domain.DailyMetrics), args.Error(1)
}

type MockOpps struct{ mock.Mock }

func (m *MockOpps) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]domain.Opportunity), args.Error(1)
}

type staticRisk domain.RiskState

func (s staticRisk) Snapshot() domain.RiskState { return domain.RiskState(s) }

type staticStatus domain.EngineStatus

func (s staticStatus) Status() domain.EngineStatus { return domain.EngineStatus(s) }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixture struct {
	opps   *MockOpps
	trades *MockTrades
	h      http.Handler
}

func newFixture(t *testing.T, cfg Config, dbErr error) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	f := &fixture{opps: new(MockOpps), trades: new(MockTrades)}
	handlers := Handlers{
		Health: handler.NewHealthHandler(
			staticStatus{Mode: "trade", Running: true, Cycles: 12},
			map[string]handler.Pinger{"db": pingFunc(func(context.Context) error { return dbErr })},
			logger,
		),
		Opportunities: handler.NewOpportunityHandler(f.opps, logger),
		Trades:        handler.NewTradeHandler(f.trades, logger),
		Risk: handler.NewRiskHandler(staticRisk{
			DailyRealizedLoss: decimal.NewFromInt(40),
			MaxDailyLoss:      decimal.NewFromInt(100),
		}),
		Stats: handler.NewStatsHandler(handler.StatsSources{
			Limiters: func() []domain.LimiterStats { return []domain.LimiterStats{{Key: "jupiter", Requests: 3}} },
		}),
	}
	f.h = NewServer(cfg, handlers, nil, logger).Handler()
	return f
}

func (f *fixture) get(t *testing.T, target string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)
	rec, body := f.get(t, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	engine := body["engine"].(map[string]any)
	assert.EqualValues(t, 12, engine["cycles"])

	down := newFixture(t, Config{}, errors.New("connection refused"))
	rec, body = down.get(t, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["dependencies"].(map[string]any)["db"])
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)
	f.trades.On("AssetStats", mock.Anything, "").Return(domain.AssetStats{Trades: 2}, nil)

	rec, _ := f.get(t, "/api/trades/stats")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.get(t, "/api/trades/stats", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := f.get(t, "/api/trades/stats", "X-API-Key", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["trades"])
}

func TestOpportunities_ListOpts(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.opps.On("ListRecent", mock.Anything, domain.ListOpts{Limit: 500, Offset: 10, Symbol: "AAPLx"}).
		Return([]domain.Opportunity{{ID: "o1", Symbol: "AAPLx"}}, nil)

	rec, body := f.get(t, "/api/opportunities?limit=9999&offset=10&asset=AAPLx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["opportunities"], 1)
	f.opps.AssertExpectations(t)
}

func TestTrades(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.trades.On("ListRecent", mock.Anything, domain.ListOpts{Limit: 50}).Return([]domain.TradeRecord(nil), nil)
	f.trades.On("DailyMetrics", mock.Anything, 7).Return([]domain.DailyMetrics{{Date: "2026-10-19", Trades: 4}}, nil)

	rec, body := f.get(t, "/api/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["trades"])

	rec, body = f.get(t, "/api/metrics/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["metrics"], 1)

	rec, _ = f.get(t, "/api/metrics/daily?days=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrades_StoreErrorIs500(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.trades.On("ListRecent", mock.Anything, mock.Anything).Return([]domain.TradeRecord(nil), errors.New("db gone"))

	rec, body := f.get(t, "/api/trades")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to list trades", body["error"])
}

func TestRiskAndStats(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	rec, body := f.get(t, "/api/risk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60.00", body["remaining"])
	assert.Equal(t, false, body["halted"])

	rec, body = f.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["rate_limiters"], 1)
	assert.Equal(t, []any{}, body["caches"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"https://dash.example"}, APIKey: "secret"}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/trades", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodOptions, "/api/trades", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewRegistry(map[string]ratelimit.Limit{"api": {Rate: 0.001, Burst: 1}})
	f := newFixture(t, Config{Limiter: limiter, RateLimitKey: "api", MaxWait: 20 * time.Millisecond}, nil)

	rec, _ := f.get(t, "/api/risk")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.get(t, "/api/risk")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
