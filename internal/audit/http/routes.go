package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Batas ekspor CSV per pengguna.
const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// MountDocumentRoutes mendaftarkan timeline per dokumen di bawah /documents.
func (h *Handler) MountDocumentRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/{docType}/{id}/events", h.handleDocument)
	r.With(exportLimiter()).Get("/{docType}/{id}/events/export.csv", h.handleDocumentExport)
}

// MountRoutes mendaftarkan endpoint audit timeline dan ekspor CSV.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/events", h.handleTimeline)
	r.With(exportLimiter()).Get("/events/export.csv", h.handleExport)
}

func exportLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "audit export rate limit exceeded")
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok && actor.ID != 0 {
		return "user:" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
