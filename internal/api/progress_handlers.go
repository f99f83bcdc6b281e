package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/grocery-catalog-crawler/internal/progress/sinks"
)

// ProgressSource yields live per-site progress. sinks.Tracker satisfies it.
type ProgressSource interface {
	Snapshot() []sinks.SiteProgress
	Site(name string) (sinks.SiteProgress, bool)
}

// ProgressHandler exposes read-only crawl progress endpoints.
type ProgressHandler struct {
	source ProgressSource
	logger *zap.Logger
}

// NewProgressHandler wires the progress source and logger.
func NewProgressHandler(source ProgressSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{source: source, logger: logger}
}

// ListSites handles GET /v1/progress. It returns {"sites": [...]}, or 503 when
// no progress source is wired.
func (h *ProgressHandler) ListSites(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": h.source.Snapshot()})
}

// GetSite handles GET /v1/progress/{site}. It returns 404 for a site that has
// not reported yet.
func (h *ProgressHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	site := chi.URLParam(r, "site")
	sp, ok := h.source.Site(site)
	if !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"site": sp})
}
