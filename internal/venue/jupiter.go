package venue

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// routeDepthMultiplier turns the output of a one-token route into a rough
// liquidity figure. Jupiter does not report pool depth directly.
var routeDepthMultiplier = decimal.NewFromInt(100)

// dexLabels pins a swap to a single venue via Jupiter's dexes filter.
var dexLabels = map[domain.SourceID]string{
	domain.SourceRaydium: "Raydium",
	domain.SourceOrca:    "Whirlpool",
	domain.SourceMeteora: "Meteora DLMM",
}

// JupiterConfig configures the Jupiter client.
type JupiterConfig struct {
	BaseURL       string
	QuoteMint     string
	QuoteDecimals int32
	SlippageBps   int
	Timeout       time.Duration
}

// Jupiter is both a price source (the aggregator's best route) and the swap
// builder for every venue.
type Jupiter struct {
	cfg        JupiterConfig
	httpClient httpDoer
}

// NewJupiter creates a Jupiter client.
func NewJupiter(cfg JupiterConfig) *Jupiter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = 50
	}
	return &Jupiter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ID implements domain.PriceSource.
func (j *Jupiter) ID() domain.SourceID { return domain.SourceJupiter }

// FetchQuote prices one whole token of asset in the quote currency.
func (j *Jupiter) FetchQuote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	amount := asset.UnitsPerToken().BigInt().Uint64()
	q, err := j.quote(ctx, asset.Mint, j.cfg.QuoteMint, amount, j.cfg.SlippageBps, "")
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue/jupiter: quote %s: %w", asset.Symbol, err)
	}

	out, err := decimal.NewFromString(q.OutAmount)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue/jupiter: parse outAmount %q: %w", q.OutAmount, err)
	}
	price := out.Shift(-j.cfg.QuoteDecimals)
	if !price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("venue/jupiter: non-positive price for %s", asset.Symbol)
	}

	routed := decimal.Zero
	for _, r := range q.RoutePlan {
		if v, err := decimal.NewFromString(r.SwapInfo.OutAmount); err == nil {
			routed = routed.Add(v)
		}
	}

	return domain.Quote{
		Source:    domain.SourceJupiter,
		Symbol:    asset.Symbol,
		Mint:      asset.Mint,
		Price:     price,
		Liquidity: routed.Shift(-j.cfg.QuoteDecimals).Mul(routeDepthMultiplier),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (j *Jupiter) quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int, dexes string) (jupiterQuote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))
	if dexes != "" {
		params.Set("dexes", dexes)
	}

	body, err := doGet(ctx, j.httpClient, j.cfg.BaseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return jupiterQuote{}, err
	}

	var q jupiterQuote
	if err := sonnet.Unmarshal(body, &q); err != nil {
		return jupiterQuote{}, fmt.Errorf("decode quote: %w", err)
	}
	if q.OutAmount == "" {
		return jupiterQuote{}, fmt.Errorf("decode quote: missing outAmount")
	}
	q.raw = body
	return q, nil
}

// SwapRequest describes one swap leg.
type SwapRequest struct {
	InputMint     string
	OutputMint    string
	Amount        uint64
	SlippageBps   int
	Venue         domain.SourceID
	UserPublicKey string
	// TipLamports, when positive, asks Jupiter to embed a relay tip
	// instruction instead of a priority fee.
	TipLamports         int64
	PriorityFeeLamports int64
}

// SwapTx is an unsigned serialized transaction and the amounts it was quoted
// for, in raw token units.
type SwapTx struct {
	Tx        []byte
	InAmount  uint64
	OutAmount uint64
}

// BuildSwap quotes the exact leg amount on the requested venue and returns
// the unsigned versioned transaction from /swap.
func (j *Jupiter) BuildSwap(ctx context.Context, req SwapRequest) (SwapTx, error) {
	q, err := j.quote(ctx, req.InputMint, req.OutputMint, req.Amount, req.SlippageBps, dexLabels[req.Venue])
	if err != nil {
		return SwapTx{}, fmt.Errorf("venue/jupiter: swap quote: %w", err)
	}

	swapReq := jupiterSwapRequest{
		QuoteResponse:           q.raw,
		UserPublicKey:           req.UserPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	}
	switch {
	case req.TipLamports > 0:
		swapReq.PrioritizationFeeLamports = jitoTip{JitoTipLamports: req.TipLamports}
	case req.PriorityFeeLamports > 0:
		swapReq.PrioritizationFeeLamports = req.PriorityFeeLamports
	}

	body, err := doPost(ctx, j.httpClient, j.cfg.BaseURL+"/swap", swapReq)
	if err != nil {
		return SwapTx{}, fmt.Errorf("venue/jupiter: swap: %w", err)
	}

	var resp jupiterSwapResponse
	if err := sonnet.Unmarshal(body, &resp); err != nil {
		return SwapTx{}, fmt.Errorf("venue/jupiter: decode swap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return SwapTx{}, fmt.Errorf("venue/jupiter: swap response missing transaction")
	}
	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return SwapTx{}, fmt.Errorf("venue/jupiter: decode swap transaction: %w", err)
	}

	in, _ := strconv.ParseUint(q.InAmount, 10, 64)
	out, _ := strconv.ParseUint(q.OutAmount, 10, 64)
	return SwapTx{Tx: tx, InAmount: in, OutAmount: out}, nil
}

var _ domain.PriceSource = (*Jupiter)(nil)
