package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// lamportsPerSOL is the number of base units in one SOL.
const lamportsPerSOL = 1_000_000_000

// ChainReader is the subset of the chain client that reports wallet balances.
type ChainReader interface {
	Balance(ctx context.Context, owner string) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint string) (uint64, error)
	TokenHoldings(ctx context.Context, owner string) ([]domain.Holding, error)
}

// BalanceService reports the wallet's balances in human units.
type BalanceService struct {
	chain         ChainReader
	owner         string
	quoteMint     string
	quoteDecimals int32
}

// NewBalanceService creates a BalanceService for the wallet owner.
func NewBalanceService(chain ChainReader, owner, quoteMint string, quoteDecimals int32) *BalanceService {
	return &BalanceService{
		chain:         chain,
		owner:         owner,
		quoteMint:     quoteMint,
		quoteDecimals: quoteDecimals,
	}
}

// QuoteBalance returns the spendable quote-currency (USDC) balance.
func (s *BalanceService) QuoteBalance(ctx context.Context) (decimal.Decimal, error) {
	raw, err := s.chain.TokenBalance(ctx, s.owner, s.quoteMint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: quote balance: %w", err)
	}
	return decimal.NewFromUint64(raw).Shift(-s.quoteDecimals), nil
}

// FeeBalance returns the native SOL balance used to pay fees.
func (s *BalanceService) FeeBalance(ctx context.Context) (decimal.Decimal, error) {
	lamports, err := s.chain.Balance(ctx, s.owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: fee balance: %w", err)
	}
	return decimal.NewFromUint64(lamports).Div(decimal.NewFromInt(lamportsPerSOL)), nil
}

// TokenBalance returns the raw base-unit balance of mint.
func (s *BalanceService) TokenBalance(ctx context.Context, mint string) (uint64, error) {
	raw, err := s.chain.TokenBalance(ctx, s.owner, mint)
	if err != nil {
		return 0, fmt.Errorf("balance: token %s: %w", mint, err)
	}
	return raw, nil
}

// Holdings returns every non-empty token balance other than the quote
// currency.
func (s *BalanceService) Holdings(ctx context.Context) ([]domain.Holding, error) {
	all, err := s.chain.TokenHoldings(ctx, s.owner)
	if err != nil {
		return nil, fmt.Errorf("balance: holdings: %w", err)
	}
	out := make([]domain.Holding, 0, len(all))
	for _, h := range all {
		if h.Mint == s.quoteMint || h.Amount == 0 {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// PaperBalance is a fixed quote balance used by the dry-run scan mode.
type PaperBalance struct {
	Amount decimal.Decimal
}

// QuoteBalance returns the configured paper balance.
func (p PaperBalance) QuoteBalance(context.Context) (decimal.Decimal, error) {
	return p.Amount, nil
}
