package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a priced, sized two-leg arbitrage candidate. BuyPrice is
// always strictly below SellPrice.
type Opportunity struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Mint         string          `json:"mint"`
	BuySource    SourceID        `json:"buy_source"`
	SellSource   SourceID        `json:"sell_source"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	Size         decimal.Decimal `json:"size_usd"`
	ExpectedNet  decimal.Decimal `json:"expected_profit"`
	PriceImpact  decimal.Decimal `json:"price_impact"`
	DiscoveredAt time.Time       `json:"discovered_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Executed     bool            `json:"executed"`
}

// IsValid reports whether the opportunity can still be acted upon at now.
func (o Opportunity) IsValid(now time.Time) bool {
	return now.Before(o.ExpiresAt)
}

// SpreadPct returns (sell-buy)/buy * 100.
func (o Opportunity) SpreadPct() decimal.Decimal {
	if o.BuyPrice.IsZero() {
		return decimal.Zero
	}
	return o.SellPrice.Sub(o.BuyPrice).Div(o.BuyPrice).Mul(decimal.NewFromInt(100))
}

// MarginPct returns expected net profit as a percentage of size.
func (o Opportunity) MarginPct() decimal.Decimal {
	if o.Size.IsZero() {
		return decimal.Zero
	}
	return o.ExpectedNet.Div(o.Size).Mul(decimal.NewFromInt(100))
}
