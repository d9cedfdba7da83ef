package domain

import "github.com/shopspring/decimal"

// SourceID identifies a price venue.
type SourceID string

const (
	SourceJupiter SourceID = "jupiter"
	SourceRaydium SourceID = "raydium"
	SourceOrca    SourceID = "orca"
	SourceMeteora SourceID = "meteora"
)

// Asset is a tracked token. Assets are loaded once at startup and never change.
type Asset struct {
	Symbol       string
	Mint         string
	Decimals     int32
	MinLiquidity decimal.Decimal
	// MaxPosition caps the notional per trade for this asset. Zero means no
	// asset-specific cap.
	MaxPosition decimal.Decimal
}

// UnitsPerToken returns 10^Decimals.
func (a Asset) UnitsPerToken() decimal.Decimal {
	return decimal.New(1, a.Decimals)
}
