package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// RiskReporter exposes the risk manager's current state.
type RiskReporter interface {
	Snapshot() domain.RiskState
}

// RiskHandler serves GET /api/risk.
type RiskHandler struct {
	risk RiskReporter
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskReporter) *RiskHandler {
	return &RiskHandler{risk: risk}
}

// Get returns the daily loss, the limit and whether trading is halted.
func (h *RiskHandler) Get(w http.ResponseWriter, _ *http.Request) {
	st := h.risk.Snapshot()
	remaining := decimal.Max(st.MaxDailyLoss.Sub(st.DailyRealizedLoss), decimal.Zero)
	writeJSON(w, http.StatusOK, map[string]any{
		"daily_realized_loss": st.DailyRealizedLoss.StringFixed(2),
		"max_daily_loss":      st.MaxDailyLoss.StringFixed(2),
		"remaining":           remaining.StringFixed(2),
		"day_anchor":          st.DayAnchor,
		"halted":              st.Halted,
	})
}
