package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// OpportunityLister is the read side of the opportunity service.
type OpportunityLister interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error)
}

// OpportunityHandler serves opportunity history.
type OpportunityHandler struct {
	opps   OpportunityLister
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(opps OpportunityLister, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{opps: opps, logger: logger}
}

// List returns recent opportunities, newest first.
// GET /api/opportunities?limit=&offset=&asset=
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	opps, err := h.opps.ListRecent(r.Context(), opts)
	if err != nil {
		internalError(w, r, h.logger, "failed to list opportunities", err)
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"limit":         opts.Limit,
		"offset":        opts.Offset,
	})
}
