package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// Payloads above this size go through the multipart uploader.
	defaultMultipartThreshold int64 = 8 * 1024 * 1024
)

// OpportunityArchiveStore is the slice of the opportunity store the archiver
// needs.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeArchiveStore is the slice of the trade store the archiver needs.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

var _ domain.Archiver = (*Archiver)(nil)

// Archiver exports records older than a cutoff as JSONL objects and prunes
// them from the primary store once the upload succeeded.
type Archiver struct {
	writer             domain.BlobWriter
	opps               OpportunityArchiveStore
	trades             TradeArchiveStore
	audit              domain.AuditStore
	multipartThreshold int64
	now                func() time.Time
	logger             *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, opps OpportunityArchiveStore, trades TradeArchiveStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:             writer,
		opps:               opps,
		trades:             trades,
		audit:              audit,
		multipartThreshold: defaultMultipartThreshold,
		now:                time.Now,
		logger:             logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities exports and deletes opportunities discovered before
// the cutoff, returning how many were archived.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	return archive(ctx, a, "opportunities", before, opps, a.opps.DeleteBefore)
}

// ArchiveTrades exports and deletes trades executed before the cutoff.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	return archive(ctx, a, "trades", before, trades, a.trades.DeleteBefore)
}

// Run archives both tables with a cutoff of now minus retention.
func (a *Archiver) Run(ctx context.Context, retention time.Duration) error {
	cutoff := a.now().UTC().Add(-retention)
	a.logger.InfoContext(ctx, "archiver: starting run", slog.Time("cutoff", cutoff))

	trades, err := a.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return err
	}
	opps, err := a.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "archiver: run complete",
		slog.Int64("trades", trades),
		slog.Int64("opportunities", opps),
	)
	return nil
}

func archive[T any](
	ctx context.Context,
	a *Archiver,
	kind string,
	before time.Time,
	records []T,
	prune func(context.Context, time.Time) (int64, error),
) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path, err := a.freePath(ctx, kind, before)
	if err != nil {
		return 0, err
	}
	if int64(len(buf)) > a.multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), a.multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	deleted, err := prune(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive %s prune: %w", kind, err)
	}
	if deleted != count {
		a.logger.WarnContext(ctx, "archiver: pruned row count differs from archived",
			slog.String("kind", kind),
			slog.Int64("archived", count),
			slog.Int64("deleted", deleted),
		)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			a.logger.WarnContext(ctx, "archiver: audit log failed", slog.String("error", err.Error()))
		}
	}
	a.logger.InfoContext(ctx, "archiver: uploaded",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int("bytes", len(buf)),
	)
	return count, nil
}

// freePath returns archive/<kind>/<YYYY-MM-DD>.jsonl, adding a numeric
// suffix when an earlier run already wrote that key.
func (a *Archiver) freePath(ctx context.Context, kind string, before time.Time) (string, error) {
	base := fmt.Sprintf("archive/%s/%s", kind, before.UTC().Format("2006-01-02"))
	path := base + ".jsonl"
	for i := 1; ; i++ {
		exists, err := a.writer.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive %s: %w", kind, err)
		}
		if !exists {
			return path, nil
		}
		path = fmt.Sprintf("%s.%d.jsonl", base, i)
	}
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
