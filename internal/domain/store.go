package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Symbol string
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists discovered opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	MarkExecuted(ctx context.Context, id string) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore persists execution results. Insert also marks the underlying
// opportunity executed.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListRecent(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	SumLoss(ctx context.Context, since time.Time) (decimal.Decimal, error)
	AssetStats(ctx context.Context, symbol string) (AssetStats, error)
	DailyMetrics(ctx context.Context, days int) ([]DailyMetrics, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
