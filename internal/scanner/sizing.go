package scanner

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// ImpactBand is a flat per-leg price impact for notionals up to MaxNotional.
type ImpactBand struct {
	MaxNotional decimal.Decimal
	Impact      decimal.Decimal
}

// Params holds every threshold used to detect and size an opportunity. All
// money values are in the quote currency unless noted.
type Params struct {
	MinPriceDiffPct   decimal.Decimal
	MinProfitUSD      decimal.Decimal
	MinMarginPct      decimal.Decimal
	MinPositionUSD    decimal.Decimal
	MaxPositionUSD    decimal.Decimal
	MaxPriceImpact    decimal.Decimal
	BalanceFraction   decimal.Decimal
	LiquidityFraction decimal.Decimal
	SwapFeeRate       decimal.Decimal
	GasEstimateSOL    decimal.Decimal
	FeeAssetPriceUSD  decimal.Decimal
	ImpactBands       []ImpactBand
	ImpactLinearRate  decimal.Decimal
	ImpactLinearUnit  decimal.Decimal
	Validity          time.Duration
}

// DefaultParams returns the production thresholds.
func DefaultParams() Params {
	d := decimal.RequireFromString
	return Params{
		MinPriceDiffPct:   d("0.7"),
		MinProfitUSD:      d("10"),
		MinMarginPct:      d("1.0"),
		MinPositionUSD:    d("10"),
		MaxPositionUSD:    d("5000"),
		MaxPriceImpact:    d("0.01"),
		BalanceFraction:   d("0.5"),
		LiquidityFraction: d("0.1"),
		SwapFeeRate:       d("0.0025"),
		GasEstimateSOL:    d("0.00003"),
		FeeAssetPriceUSD:  d("150"),
		ImpactBands: []ImpactBand{
			{MaxNotional: d("100"), Impact: d("0.0001")},
			{MaxNotional: d("1000"), Impact: d("0.0005")},
		},
		ImpactLinearRate: d("0.001"),
		ImpactLinearUnit: d("10000"),
		Validity:         10 * time.Second,
	}
}

var (
	smallLadder  = []int64{10, 15, 20, 25, 30, 40, 50}
	mediumLadder = []int64{20, 50, 100, 150, 200, 300}
	largeLadder  = []int64{50, 100, 200, 500, 1000, 2000}
)

// Ladder returns the ascending candidate sizes for a wallet balance.
func (p Params) Ladder(balance decimal.Decimal) []decimal.Decimal {
	var steps []int64
	switch {
	case balance.LessThan(decimal.NewFromInt(100)):
		steps = smallLadder
	case balance.LessThan(decimal.NewFromInt(500)):
		steps = mediumLadder
	default:
		steps = largeLadder
	}
	out := make([]decimal.Decimal, len(steps))
	for i, s := range steps {
		out[i] = decimal.NewFromInt(s)
	}
	return out
}

// Impact estimates the per-leg price impact of trading size. Flat bands
// apply up to the last band's notional; above it impact grows linearly but
// never drops below the last band.
func (p Params) Impact(size decimal.Decimal) decimal.Decimal {
	floor := decimal.Zero
	for _, b := range p.ImpactBands {
		if size.LessThanOrEqual(b.MaxNotional) {
			return b.Impact
		}
		floor = b.Impact
	}
	linear := p.ImpactLinearRate.Mul(size.Div(p.ImpactLinearUnit))
	return decimal.Max(floor, linear)
}

// MaxNotional caps trade size by balance, pool depth, and position limits.
// assetCap is ignored when zero.
func (p Params) MaxNotional(balance, buyLiquidity, sellLiquidity, assetCap decimal.Decimal) decimal.Decimal {
	depth := decimal.Min(buyLiquidity, sellLiquidity)
	m := decimal.Min(
		balance.Mul(p.BalanceFraction),
		depth.Mul(p.LiquidityFraction),
		p.MaxPositionUSD,
	)
	if assetCap.IsPositive() {
		m = decimal.Min(m, assetCap)
	}
	return m
}

// Estimate is the projected outcome of trading Size across the pair.
type Estimate struct {
	Size           decimal.Decimal
	Impact         decimal.Decimal
	CombinedImpact decimal.Decimal
	EffectiveBuy   decimal.Decimal
	EffectiveSell  decimal.Decimal
	Revenue        decimal.Decimal
	Fees           decimal.Decimal
	Gas            decimal.Decimal
	Net            decimal.Decimal
	MarginPct      decimal.Decimal
}

// GasUSD is the fixed per-trade gas estimate converted to the quote currency.
func (p Params) GasUSD() decimal.Decimal {
	return p.GasEstimateSOL.Mul(p.FeeAssetPriceUSD)
}

// Estimate projects net profit for buying at buy and selling at sell.
func (p Params) Estimate(buy, sell, size decimal.Decimal) Estimate {
	imp := p.Impact(size)
	effBuy := buy.Mul(one.Add(imp))
	effSell := sell.Mul(one.Sub(imp))

	revenue := size.Div(effBuy).Mul(effSell)
	fees := size.Mul(p.SwapFeeRate).Mul(two)
	gas := p.GasUSD()
	net := revenue.Sub(size).Sub(fees).Sub(gas)

	e := Estimate{
		Size:           size,
		Impact:         imp,
		CombinedImpact: imp.Mul(two),
		EffectiveBuy:   effBuy,
		EffectiveSell:  effSell,
		Revenue:        revenue,
		Fees:           fees,
		Gas:            gas,
		Net:            net,
	}
	if size.IsPositive() {
		e.MarginPct = net.Div(size).Mul(hundred)
	}
	return e
}

// Acceptable reports whether e clears the impact cap and both profit floors.
func (p Params) Acceptable(e Estimate) bool {
	if e.CombinedImpact.GreaterThan(p.MaxPriceImpact) {
		return false
	}
	return e.Net.GreaterThanOrEqual(p.MinProfitUSD) && e.MarginPct.GreaterThanOrEqual(p.MinMarginPct)
}

// Size walks the ladder up to maxNotional and returns the first acceptable
// estimate.
func (p Params) Size(buy, sell, balance, maxNotional decimal.Decimal) (Estimate, bool) {
	for _, size := range p.Ladder(balance) {
		if size.GreaterThan(maxNotional) {
			break
		}
		if size.LessThan(p.MinPositionUSD) {
			continue
		}
		e := p.Estimate(buy, sell, size)
		if p.Acceptable(e) {
			return e, true
		}
	}
	return Estimate{}, false
}
