// Package handler implements the read-only REST API over opportunities,
// trades, risk state and runtime statistics.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// writeJSON marshals v with the given status, falling back to a bare 500 if
// encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers 500 with a generic message.
func internalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(r.Context(), "handler: "+msg, slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, msg)
}

// parseListOpts reads limit (default 50, max 500), offset and asset.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	opts := domain.ListOpts{
		Limit:  queryInt(r, "limit", defaultLimit),
		Offset: max(queryInt(r, "offset", 0), 0),
		Symbol: strings.TrimSpace(q.Get("asset")),
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	opts.Limit = min(opts.Limit, maxLimit)
	return opts
}

// queryInt returns the named integer parameter or def when missing or
// malformed.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
