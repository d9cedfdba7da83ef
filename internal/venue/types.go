package venue

import "encoding/json"

// --------------------------------------------------------------------------
// Jupiter API DTOs
// --------------------------------------------------------------------------

// jupiterQuote is the subset of the /quote response the engine reads. The
// raw body is kept so it can be echoed back verbatim to /swap.
type jupiterQuote struct {
	InputMint      string          `json:"inputMint"`
	InAmount       string          `json:"inAmount"`
	OutputMint     string          `json:"outputMint"`
	OutAmount      string          `json:"outAmount"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      []jupiterRoute  `json:"routePlan"`
	raw            json.RawMessage
}

type jupiterRoute struct {
	SwapInfo struct {
		AMMKey    string `json:"ammKey"`
		Label     string `json:"label"`
		InAmount  string `json:"inAmount"`
		OutAmount string `json:"outAmount"`
	} `json:"swapInfo"`
	Percent int `json:"percent"`
}

type jupiterSwapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports any             `json:"prioritizationFeeLamports,omitempty"`
}

type jitoTip struct {
	JitoTipLamports int64 `json:"jitoTipLamports"`
}

type jupiterSwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// --------------------------------------------------------------------------
// DexScreener API DTOs
// --------------------------------------------------------------------------

type dexScreenerResponse struct {
	Pairs []Pair `json:"pairs"`
}

// Pair is one DEX pool as reported by DexScreener.
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}
