package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecPath is the execution strategy used for a trade.
type ExecPath string

const (
	ExecPathNone       ExecPath = ""
	ExecPathAtomic     ExecPath = "atomic"
	ExecPathSequential ExecPath = "sequential"
)

// TradeResult is the outcome of one execution attempt.
type TradeResult struct {
	OpportunityID string           `json:"opportunity_id"`
	Success       bool             `json:"success"`
	Partial       bool             `json:"partial"`
	Path          ExecPath         `json:"path"`
	BuyRef        string           `json:"buy_ref,omitempty"`
	SellRef       string           `json:"sell_ref,omitempty"`
	BundleID      string           `json:"bundle_id,omitempty"`
	RealizedPnL   *decimal.Decimal `json:"realized_profit,omitempty"`
	Error         string           `json:"error,omitempty"`
	// CostIncurred is denominated in the fee asset (SOL).
	CostIncurred decimal.Decimal `json:"cost_incurred"`
	Duration     time.Duration   `json:"execution_duration"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// Loss returns the absolute realized loss, or zero when the trade did not lose.
func (r TradeResult) Loss() decimal.Decimal {
	if r.RealizedPnL == nil || !r.RealizedPnL.IsNegative() {
		return decimal.Zero
	}
	return r.RealizedPnL.Abs()
}

// TradeRecord is a persisted trade: the result joined with the opportunity it
// executed.
type TradeRecord struct {
	Opportunity Opportunity `json:"opportunity"`
	Result      TradeResult `json:"result"`
}

// AssetStats aggregates trade history for a single asset.
type AssetStats struct {
	Symbol      string          `json:"symbol"`
	Trades      int64           `json:"trades"`
	Successes   int64           `json:"successes"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	AvgProfit   decimal.Decimal `json:"avg_profit"`
	BestTrade   decimal.Decimal `json:"best_trade"`
	WorstTrade  decimal.Decimal `json:"worst_trade"`
}

// DailyMetrics aggregates trade history for one UTC day.
type DailyMetrics struct {
	Date        string          `json:"date"`
	Trades      int64           `json:"trades"`
	Successes   int64           `json:"successes"`
	Volume      decimal.Decimal `json:"volume"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	TotalGas    decimal.Decimal `json:"total_gas"`
}
