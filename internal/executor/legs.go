package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// leg describes one swap of a trade.
type leg struct {
	name        string
	inputMint   string
	outputMint  string
	amount      uint64
	slippageBps int
	venue       domain.SourceID
	tipLamports int64
}

func (o *Orchestrator) buyLeg(opp domain.Opportunity) leg {
	return leg{
		name:        "buy",
		inputMint:   o.cfg.QuoteMint,
		outputMint:  opp.Mint,
		amount:      uint64(opp.Size.Shift(o.cfg.QuoteDecimals).IntPart()),
		slippageBps: o.cfg.BuySlippageBps,
		venue:       opp.BuySource,
	}
}

func (o *Orchestrator) sellLeg(opp domain.Opportunity, tokens uint64) leg {
	return leg{
		name:        "sell",
		inputMint:   opp.Mint,
		outputMint:  o.cfg.QuoteMint,
		amount:      tokens,
		slippageBps: o.cfg.SellSlippageBps,
		venue:       opp.SellSource,
	}
}

// estimatedTokens is the base-unit token amount size buys at price.
func estimatedTokens(size, price decimal.Decimal, decimals int32) uint64 {
	if !price.IsPositive() {
		return 0
	}
	return uint64(size.Div(price).Shift(decimals).IntPart())
}

// buildSigned builds and signs one leg.
func (o *Orchestrator) buildSigned(ctx context.Context, l leg) ([]byte, venue.SwapTx, error) {
	swap, err := o.swaps.BuildSwap(ctx, venue.SwapRequest{
		InputMint:           l.inputMint,
		OutputMint:          l.outputMint,
		Amount:              l.amount,
		SlippageBps:         l.slippageBps,
		Venue:               l.venue,
		UserPublicKey:       o.signer.PublicKey(),
		TipLamports:         l.tipLamports,
		PriorityFeeLamports: o.cfg.PriorityFeeLamports,
	})
	if err != nil {
		return nil, venue.SwapTx{}, fmt.Errorf("build %s leg: %w", l.name, err)
	}
	signed, err := o.signer.SignTransaction(swap.Tx)
	if err != nil {
		return nil, venue.SwapTx{}, fmt.Errorf("sign %s leg: %w", l.name, err)
	}
	return signed, swap, nil
}

// submit sends a signed leg and waits for confirmation. sent reports whether
// the transaction reached the network.
func (o *Orchestrator) submit(ctx context.Context, l leg, signed []byte) (sig string, sent bool, err error) {
	sig, err = o.txs.SendTransaction(ctx, signed)
	if err != nil {
		return "", false, fmt.Errorf("send %s leg: %w", l.name, err)
	}
	if err := o.txs.WaitForConfirmation(ctx, sig, o.cfg.ConfirmRetries, o.cfg.ConfirmInterval); err != nil {
		return sig, true, fmt.Errorf("confirm %s leg: %w", l.name, err)
	}
	return sig, true, nil
}

// executeSequential trades the buy leg, waits for it to settle, then sells
// what was actually received.
func (o *Orchestrator) executeSequential(ctx context.Context, log *slog.Logger, opp domain.Opportunity, asset domain.Asset, initialQuote decimal.Decimal) domain.TradeResult {
	const path = domain.ExecPathSequential

	buy := o.buyLeg(opp)
	signedBuy, _, err := o.buildSigned(ctx, buy)
	if err != nil {
		return o.abort(path, err)
	}
	buySig, sent, err := o.submit(ctx, buy, signedBuy)
	if err != nil {
		if !sent {
			return o.abort(path, err)
		}
		res := o.fatal(path, err)
		res.BuyRef = buySig
		return res
	}
	log.InfoContext(ctx, "executor: buy leg confirmed", slog.String("signature", buySig))

	if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
		return o.partial(path, buySig, err, opp.Size)
	}

	tokens := estimatedTokens(opp.Size, opp.BuyPrice, asset.Decimals)
	actual, err := o.balances.TokenBalance(ctx, asset.Mint)
	switch {
	case err != nil:
		log.WarnContext(ctx, "executor: token balance unavailable, selling estimate",
			slog.String("error", err.Error()),
		)
	case actual < tokens:
		log.InfoContext(ctx, "executor: clamping sell amount to balance",
			slog.Uint64("estimated", tokens),
			slog.Uint64("balance", actual),
		)
		tokens = actual
	}
	if tokens == 0 {
		return o.partial(path, buySig, fmt.Errorf("%w: no tokens received", domain.ErrInsufficientBalance), opp.Size)
	}

	sell := o.sellLeg(opp, tokens)
	signedSell, sellSwap, err := o.buildSigned(ctx, sell)
	if err != nil {
		return o.partial(path, buySig, err, opp.Size)
	}
	sellSig, _, err := o.submit(ctx, sell, signedSell)
	if err != nil {
		res := o.partial(path, buySig, err, opp.Size)
		res.SellRef = sellSig
		return res
	}
	log.InfoContext(ctx, "executor: sell leg confirmed", slog.String("signature", sellSig))

	gasUSD := o.cfg.GasPerTxSOL.Mul(decimal.NewFromInt(2)).Mul(o.cfg.FeeAssetPriceUSD)
	var delta decimal.Decimal
	if final, err := o.balances.QuoteBalance(ctx); err == nil {
		delta = final.Sub(initialQuote)
	} else {
		log.WarnContext(ctx, "executor: final balance unavailable, using quoted output",
			slog.String("error", err.Error()),
		)
		delta = decimal.NewFromUint64(sellSwap.OutAmount).Shift(-o.cfg.QuoteDecimals).Sub(opp.Size)
	}
	realized := delta.Sub(gasUSD)

	return domain.TradeResult{
		Success:      true,
		Path:         path,
		BuyRef:       buySig,
		SellRef:      sellSig,
		RealizedPnL:  &realized,
		CostIncurred: o.cfg.GasPerTxSOL.Mul(decimal.NewFromInt(2)),
	}
}

// tipLamports sizes the relay tip as a fraction of expected profit.
func (o *Orchestrator) tipLamports(expected decimal.Decimal) int64 {
	b := o.cfg.Bundle
	if !o.cfg.FeeAssetPriceUSD.IsPositive() {
		return b.MinTipLamports
	}
	tip := expected.Mul(b.TipFraction).Div(o.cfg.FeeAssetPriceUSD).Mul(lamportsPerSOL).IntPart()
	return min(max(tip, b.MinTipLamports), b.MaxTipLamports)
}

// executeAtomic submits both legs as one bundle with the tip carried by the
// sell leg. Either both land or neither does; a failed bundle only costs the
// tip.
func (o *Orchestrator) executeAtomic(ctx context.Context, log *slog.Logger, opp domain.Opportunity, asset domain.Asset) domain.TradeResult {
	const path = domain.ExecPathAtomic

	tip := o.tipLamports(opp.ExpectedNet)
	tipSOL := decimal.NewFromInt(tip).Div(lamportsPerSOL)
	tipUSD := tipSOL.Mul(o.cfg.FeeAssetPriceUSD)

	signedBuy, _, err := o.buildSigned(ctx, o.buyLeg(opp))
	if err != nil {
		return o.abort(path, err)
	}
	sell := o.sellLeg(opp, estimatedTokens(opp.Size, opp.BuyPrice, asset.Decimals))
	sell.tipLamports = tip
	signedSell, _, err := o.buildSigned(ctx, sell)
	if err != nil {
		return o.abort(path, err)
	}

	id, err := o.bundles.SendBundle(ctx, [][]byte{signedBuy, signedSell})
	if err != nil {
		return o.abort(path, fmt.Errorf("send bundle: %w", err))
	}
	log.InfoContext(ctx, "executor: bundle submitted",
		slog.String("bundle_id", id),
		slog.Int64("tip_lamports", tip),
	)

	st, err := o.bundles.WaitForBundle(ctx, id, o.cfg.Bundle.Timeout, o.cfg.Bundle.PollInterval)
	if err != nil {
		st = domain.BundleStatus{ID: id, State: domain.BundleTimeout, Detail: err.Error()}
	}

	if st.State == domain.BundleLanded {
		realized := opp.ExpectedNet.Sub(tipUSD)
		return domain.TradeResult{
			Success:      true,
			Path:         path,
			BundleID:     id,
			RealizedPnL:  &realized,
			CostIncurred: tipSOL,
		}
	}

	cause := domain.ErrBundleTimeout
	if st.State == domain.BundleFailed {
		cause = domain.ErrBundleFailed
	}
	loss := tipUSD.Neg()
	errMsg := cause.Error()
	if st.Detail != "" {
		errMsg += ": " + st.Detail
	}
	return domain.TradeResult{
		Path:         path,
		BundleID:     id,
		RealizedPnL:  &loss,
		Error:        errMsg,
		CostIncurred: tipSOL,
	}
}
