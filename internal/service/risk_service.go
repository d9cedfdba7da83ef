package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Notifier delivers operator alerts. notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventDailyLossLimit     = "daily_loss_limit"
	EventOpportunityFound   = "opportunity_found"
	EventTradeExecuted      = "trade_executed"
	EventTradeFailed        = "trade_failed"
	EventRebalanceCompleted = "rebalance"
)

// RiskManager tracks the realized loss of the current UTC day and gates
// executions once the configured limit is reached.
type RiskManager struct {
	mu           sync.Mutex
	maxDailyLoss decimal.Decimal
	loss         decimal.Decimal
	anchor       time.Time
	halted       bool

	bus      domain.SignalBus
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewRiskManager creates a RiskManager anchored to the current UTC day. bus
// and notifier may be nil.
func NewRiskManager(
	maxDailyLoss decimal.Decimal,
	bus domain.SignalBus,
	notifier Notifier,
	logger *slog.Logger,
) *RiskManager {
	r := &RiskManager{
		maxDailyLoss: maxDailyLoss,
		bus:          bus,
		notifier:     notifier,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "risk")),
	}
	r.anchor = dayStart(r.now())
	return r
}

// BeforeExecute reports whether another execution is permitted today.
func (r *RiskManager) BeforeExecute() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollLocked(r.now())
	return r.loss.LessThan(r.maxDailyLoss)
}

// RecordLoss adds the absolute value of amount to today's realized loss. The
// first time the total reaches the limit an alert is published.
func (r *RiskManager) RecordLoss(ctx context.Context, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}

	r.mu.Lock()
	r.rollLocked(r.now())
	r.loss = r.loss.Add(amount.Abs())
	crossed := !r.halted && r.loss.GreaterThanOrEqual(r.maxDailyLoss)
	if crossed {
		r.halted = true
	}
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "risk: loss recorded",
		slog.String("amount", amount.Abs().StringFixed(2)),
		slog.String("daily_loss", state.DailyRealizedLoss.StringFixed(2)),
	)

	if !crossed {
		return
	}

	r.logger.WarnContext(ctx, "risk: daily loss limit reached, trading halted",
		slog.String("daily_loss", state.DailyRealizedLoss.StringFixed(2)),
		slog.String("max_daily_loss", state.MaxDailyLoss.StringFixed(2)),
	)
	r.publish(ctx, state)
	if r.notifier != nil {
		msg := fmt.Sprintf("Daily loss %s USD reached limit %s USD. Executions are paused until the next UTC day.",
			state.DailyRealizedLoss.StringFixed(2), state.MaxDailyLoss.StringFixed(2))
		if err := r.notifier.Notify(ctx, EventDailyLossLimit, "Daily loss limit reached", msg); err != nil {
			r.logger.WarnContext(ctx, "risk: notify failed", slog.String("error", err.Error()))
		}
	}
}

// RollDay resets the accumulated loss when now falls on a later UTC date
// than the current anchor. It reports whether a reset happened.
func (r *RiskManager) RollDay(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rollLocked(now)
}

// Restore seeds today's loss from persisted trades so that a restart does not
// reset the limit.
func (r *RiskManager) Restore(ctx context.Context, trades domain.TradeStore) error {
	r.mu.Lock()
	anchor := r.anchor
	r.mu.Unlock()

	loss, err := trades.SumLoss(ctx, anchor)
	if err != nil {
		return fmt.Errorf("risk: restore daily loss: %w", err)
	}

	r.mu.Lock()
	r.loss = loss.Abs()
	r.halted = r.loss.GreaterThanOrEqual(r.maxDailyLoss)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "risk: daily loss restored",
		slog.String("daily_loss", loss.Abs().StringFixed(2)),
		slog.Time("day", anchor),
	)
	return nil
}

// Snapshot returns the current risk state.
func (r *RiskManager) Snapshot() domain.RiskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *RiskManager) snapshotLocked() domain.RiskState {
	return domain.RiskState{
		DailyRealizedLoss: r.loss,
		MaxDailyLoss:      r.maxDailyLoss,
		DayAnchor:         r.anchor,
		Halted:            r.loss.GreaterThanOrEqual(r.maxDailyLoss),
	}
}

func (r *RiskManager) rollLocked(now time.Time) bool {
	day := dayStart(now)
	if !day.After(r.anchor) {
		return false
	}
	r.anchor = day
	r.loss = decimal.Zero
	r.halted = false
	r.logger.Info("risk: new trading day, daily loss reset", slog.Time("day", day))
	return true
}

func (r *RiskManager) publish(ctx context.Context, state domain.RiskState) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.Event{Type: EventDailyLossLimit, Data: state})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.ChannelRisk, payload); err != nil {
		r.logger.WarnContext(ctx, "risk: publish event failed", slog.String("error", err.Error()))
	}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
