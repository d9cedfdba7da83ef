package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskState is the rolling daily loss tracked by the risk manager.
type RiskState struct {
	DailyRealizedLoss decimal.Decimal `json:"daily_realized_loss"`
	MaxDailyLoss      decimal.Decimal `json:"max_daily_loss"`
	DayAnchor         time.Time       `json:"day_anchor"`
	Halted            bool            `json:"halted"`
}
