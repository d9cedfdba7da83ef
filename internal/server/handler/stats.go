package handler

import (
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// StatsSources supplies runtime counters. Either func may be nil.
type StatsSources struct {
	Limiters func() []domain.LimiterStats
	Caches   func() []domain.CacheStats
}

// StatsHandler serves GET /api/stats.
type StatsHandler struct {
	src StatsSources
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(src StatsSources) *StatsHandler {
	return &StatsHandler{src: src}
}

// Get returns limiter and cache counters.
func (h *StatsHandler) Get(w http.ResponseWriter, _ *http.Request) {
	limiters := []domain.LimiterStats{}
	if h.src.Limiters != nil {
		limiters = append(limiters, h.src.Limiters()...)
	}
	caches := []domain.CacheStats{}
	if h.src.Caches != nil {
		caches = append(caches, h.src.Caches()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rate_limiters": limiters,
		"caches":        caches,
	})
}
