package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a normalized price observation for one asset on one venue.
type Quote struct {
	Source    SourceID        `json:"source"`
	Symbol    string          `json:"symbol"`
	Mint      string          `json:"mint"`
	Price     decimal.Decimal `json:"price"`
	Liquidity decimal.Decimal `json:"liquidity"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// PriceSource fetches quotes from a single venue.
type PriceSource interface {
	ID() SourceID
	FetchQuote(ctx context.Context, asset Asset) (Quote, error)
}

// FreshPriceSource is a PriceSource with its own upstream cache. FetchFreshQuote
// skips that cache and always calls the venue.
type FreshPriceSource interface {
	PriceSource
	FetchFreshQuote(ctx context.Context, asset Asset) (Quote, error)
}
