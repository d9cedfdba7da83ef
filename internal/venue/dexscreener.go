package venue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbengine/internal/cache"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// DexScreenerLimiterKey is the rate limiter bucket shared by every
// DexScreener-backed source.
const DexScreenerLimiterKey = "dexscreener"

var stableQuotes = map[string]bool{"USDC": true, "USDT": true}

// DexScreenerConfig configures the pairs client.
type DexScreenerConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// DexScreener fetches pool listings per token mint. Responses are cached per
// mint so the per-DEX sources share one upstream call.
type DexScreener struct {
	cfg        DexScreenerConfig
	httpClient httpDoer
	pairs      *cache.Cache[[]Pair]
	limiter    domain.RateLimiter
}

// NewDexScreener creates a pairs client. pairs and limiter may be nil.
func NewDexScreener(cfg DexScreenerConfig, pairs *cache.Cache[[]Pair], limiter domain.RateLimiter) *DexScreener {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &DexScreener{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		pairs:      pairs,
		limiter:    limiter,
	}
}

// Pairs returns every pool DexScreener lists for mint, from the per-mint
// cache when it holds a live entry.
func (d *DexScreener) Pairs(ctx context.Context, mint string) ([]Pair, error) {
	return d.pairsFor(ctx, mint, false)
}

// FreshPairs always calls DexScreener and refreshes the per-mint cache.
func (d *DexScreener) FreshPairs(ctx context.Context, mint string) ([]Pair, error) {
	return d.pairsFor(ctx, mint, true)
}

func (d *DexScreener) pairsFor(ctx context.Context, mint string, fresh bool) ([]Pair, error) {
	if d.pairs != nil && !fresh {
		if p, ok := d.pairs.Get(mint); ok {
			return p, nil
		}
	}
	if d.limiter != nil {
		if err := d.limiter.Acquire(ctx, DexScreenerLimiterKey, 1); err != nil {
			return nil, err
		}
	}

	headers := map[string]string{"User-Agent": d.cfg.UserAgent}
	body, err := doGet(ctx, d.httpClient, d.cfg.BaseURL+"/latest/dex/tokens/"+url.PathEscape(mint), headers)
	if err != nil {
		return nil, fmt.Errorf("venue/dexscreener: pairs %s: %w", mint, err)
	}

	var resp dexScreenerResponse
	if err := sonnet.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("venue/dexscreener: decode pairs %s: %w", mint, err)
	}
	if d.pairs != nil {
		d.pairs.Set(mint, resp.Pairs)
	}
	return resp.Pairs, nil
}

// DexSource is a domain.PriceSource for one DEX, priced from its deepest
// stablecoin-quoted pool on DexScreener.
type DexSource struct {
	id     domain.SourceID
	dexID  string
	client *DexScreener
}

// NewDexSource creates a source for the DexScreener dexId (e.g. "raydium").
func NewDexSource(id domain.SourceID, dexID string, client *DexScreener) *DexSource {
	return &DexSource{id: id, dexID: dexID, client: client}
}

// ID implements domain.PriceSource.
func (s *DexSource) ID() domain.SourceID { return s.id }

// FetchQuote implements domain.PriceSource.
func (s *DexSource) FetchQuote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	pairs, err := s.client.Pairs(ctx, asset.Mint)
	if err != nil {
		return domain.Quote{}, err
	}
	return s.quoteFrom(pairs, asset)
}

// FetchFreshQuote implements domain.FreshPriceSource. Reverification uses it
// so a trade is never re-checked against the listing the scanner saw.
func (s *DexSource) FetchFreshQuote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	pairs, err := s.client.FreshPairs(ctx, asset.Mint)
	if err != nil {
		return domain.Quote{}, err
	}
	return s.quoteFrom(pairs, asset)
}

func (s *DexSource) quoteFrom(pairs []Pair, asset domain.Asset) (domain.Quote, error) {
	var best *Pair
	for i := range pairs {
		p := &pairs[i]
		if !strings.EqualFold(p.DexID, s.dexID) {
			continue
		}
		if p.BaseToken.Address != "" && p.BaseToken.Address != asset.Mint {
			continue
		}
		if !stableQuotes[strings.ToUpper(p.QuoteToken.Symbol)] {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	if best == nil {
		return domain.Quote{}, fmt.Errorf("venue/%s: no stable pool for %s: %w", s.id, asset.Symbol, domain.ErrNotFound)
	}

	price, err := decimal.NewFromString(best.PriceUSD)
	if err != nil || !price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("venue/%s: bad priceUsd %q for %s", s.id, best.PriceUSD, asset.Symbol)
	}

	return domain.Quote{
		Source:    s.id,
		Symbol:    asset.Symbol,
		Mint:      asset.Mint,
		Price:     price,
		Liquidity: decimal.NewFromFloat(best.Liquidity.USD),
		FetchedAt: time.Now().UTC(),
	}, nil
}

var _ domain.FreshPriceSource = (*DexSource)(nil)
