package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const maxMetricDays = 365

// TradeQuerier is the read side of the trade service.
type TradeQuerier interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error)
	AssetStats(ctx context.Context, symbol string) (domain.AssetStats, error)
	DailyMetrics(ctx context.Context, days int) ([]domain.DailyMetrics, error)
}

// TradeHandler serves trade history and aggregates.
type TradeHandler struct {
	trades TradeQuerier
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeQuerier, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// List returns recent trades.
// GET /api/trades?limit=&offset=&asset=
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	trades, err := h.trades.ListRecent(r.Context(), opts)
	if err != nil {
		internalError(w, r, h.logger, "failed to list trades", err)
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": trades,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// Stats returns aggregates for one asset, or all assets when asset is unset.
// GET /api/trades/stats?asset=
func (h *TradeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("asset"))
	st, err := h.trades.AssetStats(r.Context(), symbol)
	if err != nil {
		internalError(w, r, h.logger, "failed to compute trade stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Daily returns per-day metrics.
// GET /api/metrics/daily?days=7
func (h *TradeHandler) Daily(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	if days < 1 || days > maxMetricDays {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}
	metrics, err := h.trades.DailyMetrics(r.Context(), days)
	if err != nil {
		internalError(w, r, h.logger, "failed to compute daily metrics", err)
		return
	}
	if metrics == nil {
		metrics = []domain.DailyMetrics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "metrics": metrics})
}
