package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// TradeService settles execution results: persistence, signal bus, audit and
// operator alerts.
type TradeService struct {
	trades   domain.TradeStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger
}

// NewTradeService creates a TradeService. audit and notifier may be nil.
func NewTradeService(
	trades domain.TradeStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// RecordTrade persists rec and marks its opportunity executed.
func (s *TradeService) RecordTrade(ctx context.Context, rec domain.TradeRecord) error {
	if err := s.trades.Insert(ctx, rec); err != nil {
		return fmt.Errorf("trade_service: insert %s: %w", rec.Result.OpportunityID, err)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(domain.Event{Type: "trade_executed", Data: tradeView(rec)})
		if err := s.bus.Publish(ctx, domain.ChannelTrade, evt); err != nil {
			s.logger.WarnContext(ctx, "trade_service: publish event failed",
				slog.String("opp_id", rec.Result.OpportunityID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		detail := map[string]any{
			"opp_id":  rec.Result.OpportunityID,
			"symbol":  rec.Opportunity.Symbol,
			"success": rec.Result.Success,
			"partial": rec.Result.Partial,
			"path":    string(rec.Result.Path),
		}
		if rec.Result.RealizedPnL != nil {
			detail["realized"] = rec.Result.RealizedPnL.String()
		}
		if rec.Result.Error != "" {
			detail["error"] = rec.Result.Error
		}
		if err := s.audit.Log(ctx, "trade_settled", detail); err != nil {
			s.logger.WarnContext(ctx, "trade_service: audit log failed",
				slog.String("opp_id", rec.Result.OpportunityID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.notifyTrade(ctx, rec)
	return nil
}

// ListRecent returns recent trades, newest first.
func (s *TradeService) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	recs, err := s.trades.ListRecent(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list recent: %w", err)
	}
	return recs, nil
}

// AssetStats returns aggregate trade statistics for one asset.
func (s *TradeService) AssetStats(ctx context.Context, symbol string) (domain.AssetStats, error) {
	st, err := s.trades.AssetStats(ctx, symbol)
	if err != nil {
		return domain.AssetStats{}, fmt.Errorf("trade_service: asset stats %s: %w", symbol, err)
	}
	return st, nil
}

// DailyMetrics returns per-day aggregates for the last days days.
func (s *TradeService) DailyMetrics(ctx context.Context, days int) ([]domain.DailyMetrics, error) {
	m, err := s.trades.DailyMetrics(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("trade_service: daily metrics: %w", err)
	}
	return m, nil
}

func (s *TradeService) notifyTrade(ctx context.Context, rec domain.TradeRecord) {
	if s.notifier == nil {
		return
	}
	res := rec.Result
	opp := rec.Opportunity

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s -> %s, size $%s\n", opp.Symbol, opp.BuySource, opp.SellSource, opp.Size.StringFixed(2))
	if res.RealizedPnL != nil {
		fmt.Fprintf(&b, "Realized: $%s (expected $%s)\n", res.RealizedPnL.StringFixed(2), opp.ExpectedNet.StringFixed(2))
	}
	fmt.Fprintf(&b, "Path: %s, duration %s", res.Path, res.Duration.Round(time.Millisecond))
	if res.Error != "" {
		fmt.Fprintf(&b, "\nError: %s", res.Error)
	}

	event, title := EventTradeExecuted, "Trade executed"
	switch {
	case res.Partial:
		event, title = EventTradeFailed, "Trade partially executed"
	case !res.Success:
		event, title = EventTradeFailed, "Trade failed"
	}
	if err := s.notifier.Notify(ctx, event, title, b.String()); err != nil {
		s.logger.WarnContext(ctx, "trade_service: notify failed", slog.String("error", err.Error()))
	}
}

// tradeJSON is the wire shape of a settled trade on the signal bus.
type tradeJSON struct {
	domain.TradeResult
	Symbol     string          `json:"symbol"`
	BuySource  domain.SourceID `json:"buy_source"`
	SellSource domain.SourceID `json:"sell_source"`
	Size       string          `json:"size_usd"`
	Expected   string          `json:"expected_profit"`
}

func tradeView(rec domain.TradeRecord) tradeJSON {
	return tradeJSON{
		TradeResult: rec.Result,
		Symbol:      rec.Opportunity.Symbol,
		BuySource:   rec.Opportunity.BuySource,
		SellSource:  rec.Opportunity.SellSource,
		Size:        rec.Opportunity.Size.String(),
		Expected:    rec.Opportunity.ExpectedNet.String(),
	}
}
