package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/idempotency"
	"github.com/sauber-detailing/pos-api/internal/platform/requestctx"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const (
	defaultPurgeBatch = 500
	maxPurgeBatch     = 5000
)

// InternalHandlers serves scheduler-triggered maintenance jobs behind OIDC.
type InternalHandlers struct {
	idempotency idempotency.Store
	reports     services.ReportService
	clock       func() time.Time
}

// InternalOption customises InternalHandlers.
type InternalOption func(*InternalHandlers)

// WithInternalClock overrides the time source.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewInternalHandlers constructs InternalHandlers. Either collaborator may be nil; its job
// then answers 503.
func NewInternalHandlers(store idempotency.Store, reports services.ReportService, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{idempotency: store, reports: reports, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the job endpoints relative to /internal.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/idempotency:cleanup", h.cleanupIdempotency)
	r.Post("/jobs/daily-export", h.dailyExport)
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		writeUnavailable(w, r, "idempotency_unavailable", "idempotency store unavailable")
		return
	}
	batch := defaultPurgeBatch
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeInvalid(w, r, "limit must be a positive integer")
			return
		}
		batch = min(n, maxPurgeBatch)
	}

	started := h.clock()
	removed, err := h.idempotency.Purge(ctx, started, batch)
	if err != nil {
		requestctx.Logger(ctx).Error("idempotency purge failed", zap.Error(err))
		writeUnavailable(w, r, "idempotency_unavailable", "failed to purge idempotency keys")
		return
	}
	requestctx.Logger(ctx).Info("idempotency keys purged",
		zap.Int("removed", removed),
		zap.String("caller", callerSubject(r)),
	)
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"removed":     removed,
		"limit":       batch,
		"more":        removed >= batch,
		"duration_ms": h.clock().Sub(started).Milliseconds(),
	})
}

func (h *InternalHandlers) dailyExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	export, err := h.reports.ExportPreviousDay(ctx, h.clock())
	if err != nil {
		requestctx.Logger(ctx).Error("daily export failed", zap.Error(err))
		writeReportError(ctx, w, err)
		return
	}
	requestctx.Logger(ctx).Info("daily export written",
		zap.String("object", export.Object),
		zap.Int("rows", export.Rows),
		zap.String("caller", callerSubject(r)),
	)
	writeJSONResponse(w, http.StatusCreated, newExportResponse(export))
}

func callerSubject(r *http.Request) string {
	if svc, ok := auth.ServiceIdentityFromContext(r.Context()); ok && svc != nil {
		if svc.Email != "" {
			return svc.Email
		}
		return svc.Subject
	}
	return ""
}
