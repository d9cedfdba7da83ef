package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// OpportunityService records discovered opportunities: it persists them,
// publishes them on the signal bus and writes an audit entry.
type OpportunityService struct {
	store    domain.OpportunityStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	notify   bool
	logger   *slog.Logger
}

// NewOpportunityService creates an OpportunityService. audit and notifier may
// be nil; notifyFound enables an alert per discovered opportunity.
func NewOpportunityService(
	store domain.OpportunityStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	notifyFound bool,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		store:    store,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		notify:   notifyFound,
		logger:   logger.With(slog.String("component", "opportunity_service")),
	}
}

// RecordOpportunity persists opp and fans it out to subscribers. Only the
// store write can fail the call.
func (s *OpportunityService) RecordOpportunity(ctx context.Context, opp domain.Opportunity) error {
	if err := s.store.Insert(ctx, opp); err != nil {
		return fmt.Errorf("opportunity_service: insert %s: %w", opp.ID, err)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(domain.Event{Type: "opportunity_detected", Data: opp})
		if err := s.bus.Publish(ctx, domain.ChannelOpportunity, evt); err != nil {
			s.logger.WarnContext(ctx, "opportunity_service: publish event failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "opportunity_recorded", map[string]any{
			"opp_id":      opp.ID,
			"symbol":      opp.Symbol,
			"buy_source":  string(opp.BuySource),
			"sell_source": string(opp.SellSource),
			"size":        opp.Size.String(),
			"expected":    opp.ExpectedNet.String(),
		}); err != nil {
			s.logger.WarnContext(ctx, "opportunity_service: audit log failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notify && s.notifier != nil {
		title := fmt.Sprintf("Opportunity: %s", opp.Symbol)
		msg := fmt.Sprintf("Buy on %s at %s, sell on %s at %s\nSize $%s, expected profit $%s (%s%%)",
			opp.BuySource, opp.BuyPrice.StringFixed(4),
			opp.SellSource, opp.SellPrice.StringFixed(4),
			opp.Size.StringFixed(2), opp.ExpectedNet.StringFixed(2), opp.SpreadPct().StringFixed(2))
		if err := s.notifier.Notify(ctx, EventOpportunityFound, title, msg); err != nil {
			s.logger.WarnContext(ctx, "opportunity_service: notify failed", slog.String("error", err.Error()))
		}
	}

	s.logger.DebugContext(ctx, "opportunity_service: opportunity recorded",
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
	)
	return nil
}

// ListRecent returns recent opportunities, newest first.
func (s *OpportunityService) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	opps, err := s.store.ListRecent(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list recent: %w", err)
	}
	return opps, nil
}
