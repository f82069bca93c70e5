package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/platform/pagination"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const (
	defaultTrendWindow    = 7
	defaultCategoryDays   = 7
	maxReportBodySize     = 4 * 1024
	defaultSummaryPeriod  = services.SummaryDay
	defaultDashboardRange = services.DashboardToday
)

// ReportHandlers exposes the sales reports.
type ReportHandlers struct {
	reports services.ReportService
	loc     *time.Location
	clock   func() time.Time
}

// ReportOption customises ReportHandlers.
type ReportOption func(*ReportHandlers)

// WithReportLocation sets the business time zone.
func WithReportLocation(loc *time.Location) ReportOption {
	return func(h *ReportHandlers) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithReportClock overrides the time source.
func WithReportClock(clock func() time.Time) ReportOption {
	return func(h *ReportHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewReportHandlers constructs ReportHandlers.
func NewReportHandlers(reports services.ReportService, opts ...ReportOption) *ReportHandlers {
	h := &ReportHandlers{reports: reports, loc: time.UTC, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /reports endpoints.
func (h *ReportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	read := r.With(auth.RequireCapability(auth.CapReportsRead))
	read.Get("/reports/summary", h.summary)
	read.Get("/reports/trend", h.trend)
	read.Get("/reports/categories", h.categories)
	read.Get("/reports/recent-customers", h.recentCustomers)
	read.Get("/reports/dashboard", h.dashboard)
	read.Get("/reports/overview", h.overview)
	read.Get("/reports/sales", h.sales)
	r.With(auth.RequireCapability(auth.CapReportsExport)).Post("/reports/sales:export", h.exportSales)
}

type rangePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func newRangePayload(r domain.TimeRange) rangePayload {
	return rangePayload{From: formatTime(r.From), To: formatTime(r.To)}
}

type amountMetricPayload struct {
	Current       string   `json:"current"`
	CurrentMinor  int64    `json:"current_minor"`
	Previous      string   `json:"previous"`
	PreviousMinor int64    `json:"previous_minor"`
	Variance      *float64 `json:"variance"`
}

type countMetricPayload struct {
	Current  int      `json:"current"`
	Previous int      `json:"previous"`
	Variance *float64 `json:"variance"`
}

type trendBucketPayload struct {
	Label      string `json:"label"`
	Start      string `json:"start"`
	Total      string `json:"total"`
	TotalMinor int64  `json:"total_minor"`
}

type categoryPayload struct {
	Label      string `json:"label"`
	Total      string `json:"total"`
	TotalMinor int64  `json:"total_minor"`
}

type rollupPayload struct {
	Name          string `json:"name"`
	Phone         string `json:"phone,omitempty"`
	Total         string `json:"total"`
	TotalMinor    int64  `json:"total_minor"`
	Orders        int    `json:"orders"`
	LastOrderAt   string `json:"last_order_at"`
	Status        string `json:"status"`
	LatestOrderID string `json:"latest_order_id"`
}

type hourPayload struct {
	Hour       int    `json:"hour"`
	Total      string `json:"total"`
	TotalMinor int64  `json:"total_minor"`
}

type salesRowPayload struct {
	OrderID       string         `json:"order_id"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
	Vehicle       vehiclePayload `json:"vehicle"`
	ItemName      string         `json:"item_name"`
	Price         string         `json:"price"`
	PriceMinor    int64          `json:"price_minor"`
	Custom        bool           `json:"custom"`
	Operator      string         `json:"operator"`
	CreatedAt     string         `json:"created_at"`
}

func newAmountMetric(m services.AmountMetric) amountMetricPayload {
	return amountMetricPayload{
		Current:       m.Current.Decimal(),
		CurrentMinor:  int64(m.Current),
		Previous:      m.Previous.Decimal(),
		PreviousMinor: int64(m.Previous),
		Variance:      m.Variance,
	}
}

func newTrendPayloads(buckets []services.TrendBucket) []trendBucketPayload {
	out := make([]trendBucketPayload, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, trendBucketPayload{Label: b.Label, Start: formatTime(b.Start), Total: b.Total.Decimal(), TotalMinor: int64(b.Total)})
	}
	return out
}

func newCategoryPayloads(totals services.CategoryTotals) []categoryPayload {
	out := make([]categoryPayload, 0, len(services.CategoryLabels))
	for _, label := range services.CategoryLabels {
		amount := totals[label]
		out = append(out, categoryPayload{Label: string(label), Total: amount.Decimal(), TotalMinor: int64(amount)})
	}
	return out
}

func newRollupPayloads(rollups []services.CustomerRollup) []rollupPayload {
	out := make([]rollupPayload, 0, len(rollups))
	for _, c := range rollups {
		out = append(out, rollupPayload{
			Name:          c.Name,
			Phone:         c.Phone,
			Total:         c.Total.Decimal(),
			TotalMinor:    int64(c.Total),
			Orders:        c.Orders,
			LastOrderAt:   formatTime(c.LastOrderAt),
			Status:        c.Status,
			LatestOrderID: c.LatestOrderID,
		})
	}
	return out
}

func (h *ReportHandlers) summary(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	period := services.SummaryPeriod(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period"))))
	if period == "" {
		period = defaultSummaryPeriod
	}
	summary, err := h.reports.Summary(r.Context(), period, h.clock())
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"period":         string(summary.Period),
		"range":          newRangePayload(summary.Range),
		"previous_range": newRangePayload(summary.PreviousRange),
		"total":          summary.Total.Decimal(),
		"total_minor":    int64(summary.Total),
		"total_display":  summary.Total.Display(),
		"previous_total": summary.PreviousTotal.Decimal(),
		"previous_minor": int64(summary.PreviousTotal),
		"orders":         summary.Orders,
		"variance":       summary.Variance,
	})
}

func (h *ReportHandlers) trend(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	query := r.URL.Query()
	granularity := services.GranularityDay
	if raw := strings.TrimSpace(query.Get("granularity")); raw != "" {
		g, ok := services.ParseGranularity(raw)
		if !ok {
			writeInvalid(w, r, "granularity must be hour, day, week or month")
			return
		}
		granularity = g
	}
	window := defaultTrendWindow
	if raw := strings.TrimSpace(query.Get("window")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeInvalid(w, r, "window must be an integer")
			return
		}
		window = n
	}
	buckets, err := h.reports.Trend(r.Context(), granularity, window, h.clock())
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"granularity": string(granularity),
		"buckets":     newTrendPayloads(buckets),
	})
}

// categories defaults to the trailing seven days when no range is given.
func (h *ReportHandlers) categories(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	window, err := parseRangeParams(r, h.loc)
	if err != nil {
		writeInvalid(w, r, "from and to must be YYYY-MM-DD or RFC3339")
		return
	}
	if window.IsZero() {
		now := h.clock().In(h.loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
		window = domain.TimeRange{From: today.AddDate(0, 0, -(defaultCategoryDays - 1)), To: now}
	}
	totals, err := h.reports.Categories(r.Context(), window)
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"range":      newRangePayload(window),
		"categories": newCategoryPayloads(totals),
	})
}

func (h *ReportHandlers) recentCustomers(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	rollups, err := h.reports.RecentCustomers(r.Context())
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": newRollupPayloads(rollups)})
}

func (h *ReportHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	period := services.DashboardPeriod(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period"))))
	if period == "" {
		period = defaultDashboardRange
	}
	dash, err := h.reports.Dashboard(r.Context(), period, h.clock())
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	hourly := make([]hourPayload, 0, len(dash.Hourly))
	for hour, amount := range dash.Hourly {
		hourly = append(hourly, hourPayload{Hour: hour, Total: amount.Decimal(), TotalMinor: int64(amount)})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"period":           string(dash.Period),
		"range":            newRangePayload(dash.Range),
		"previous_range":   newRangePayload(dash.PreviousRange),
		"income":           newAmountMetric(dash.Income),
		"orders":           countMetricPayload(dash.Orders),
		"customers":        countMetricPayload(dash.Customers),
		"hourly":           hourly,
		"recent_customers": newRollupPayloads(dash.RecentCustomers),
	})
}

func (h *ReportHandlers) overview(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	ov, err := h.reports.Overview(r.Context(), h.clock())
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"daily":         ov.Daily.Decimal(),
		"daily_minor":   int64(ov.Daily),
		"weekly":        ov.Weekly.Decimal(),
		"weekly_minor":  int64(ov.Weekly),
		"monthly":       ov.Monthly.Decimal(),
		"monthly_minor": int64(ov.Monthly),
		"trend":         newTrendPayloads(ov.Trend),
		"categories":    newCategoryPayloads(ov.Categories),
		"generated_at":  formatTime(ov.GeneratedAt),
	})
}

func (h *ReportHandlers) sales(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	page, err := pagination.ParsePage(r.URL.Query())
	if err != nil {
		writeInvalid(w, r, err.Error())
		return
	}
	window, err := parseRangeParams(r, h.loc)
	if err != nil {
		writeInvalid(w, r, "from and to must be YYYY-MM-DD or RFC3339")
		return
	}
	result, err := h.reports.Sales(r.Context(), services.SalesFilter{
		Range:  window,
		Search: r.URL.Query().Get("q"),
		Page:   page,
	})
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	rows := make([]salesRowPayload, 0, len(result.Items))
	for _, row := range result.Items {
		rows = append(rows, salesRowPayload{
			OrderID:       row.OrderID,
			CustomerName:  row.CustomerName,
			CustomerPhone: row.CustomerPhone,
			Vehicle:       newVehiclePayload(row.Vehicle),
			ItemName:      row.ItemName,
			Price:         row.Price.Decimal(),
			PriceMinor:    int64(row.Price),
			Custom:        row.Custom,
			Operator:      row.Operator,
			CreatedAt:     formatTime(row.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":     rows,
		"page":      result.Page,
		"page_size": result.PageSize,
		"total":     result.Total,
	})
}

type exportSalesRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type exportResponse struct {
	Object      string       `json:"object"`
	Rows        int          `json:"rows"`
	Range       rangePayload `json:"range"`
	DownloadURL string       `json:"download_url"`
	ExpiresAt   string       `json:"expires_at"`
}

func newExportResponse(export services.SalesExport) exportResponse {
	return exportResponse{
		Object:      export.Object,
		Rows:        export.Rows,
		Range:       newRangePayload(export.Range),
		DownloadURL: export.Download.URL,
		ExpiresAt:   formatTime(export.Download.ExpiresAt),
	}
}

func (h *ReportHandlers) exportSales(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeUnavailable(w, r, "report_service_unavailable", "report service unavailable")
		return
	}
	var req exportSalesRequest
	if !decodeJSONBody(w, r, maxReportBodySize, &req) {
		return
	}
	from, errFrom := parseDateParam(req.From, h.loc, false)
	to, errTo := parseDateParam(req.To, h.loc, true)
	if errFrom != nil || errTo != nil {
		writeInvalid(w, r, "from and to must be YYYY-MM-DD or RFC3339")
		return
	}
	export, err := h.reports.ExportSales(r.Context(), domain.TimeRange{From: from, To: to})
	if err != nil {
		writeReportError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newExportResponse(export))
}

func writeReportError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReportInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReportUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("report_unavailable", "reports are unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to build report", http.StatusInternalServerError))
	}
}
