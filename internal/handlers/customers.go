package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/platform/pagination"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const maxCustomerBodySize = 8 * 1024

type customerRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Vehicle string `json:"vehicle" validate:"required,max=160"`
}

// CustomerHandlers exposes the customer directory.
type CustomerHandlers struct {
	customers services.CustomerService
	loc       *time.Location
	suggest   rateLimiter
}

// CustomerOption customises CustomerHandlers.
type CustomerOption func(*CustomerHandlers)

// WithCustomerLocation sets the zone used to read calendar-date filters.
func WithCustomerLocation(loc *time.Location) CustomerOption {
	return func(h *CustomerHandlers) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithSuggestRateLimit caps suggestion lookups per operator per minute.
func WithSuggestRateLimit(perMinute int, clock func() time.Time) CustomerOption {
	return func(h *CustomerHandlers) {
		h.suggest = newKeyedRateLimiter(perMinute, clock)
	}
}

// NewCustomerHandlers constructs CustomerHandlers.
func NewCustomerHandlers(customers services.CustomerService, opts ...CustomerOption) *CustomerHandlers {
	h := &CustomerHandlers{customers: customers, loc: time.UTC}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	read := r.With(auth.RequireCapability(auth.CapCustomersRead))
	write := r.With(auth.RequireCapability(auth.CapCustomersWrite))

	read.Get("/customers", h.searchCustomers)
	read.Get("/customers:suggest", h.suggestCustomers)
	read.Get("/customers/{customerID}", h.getCustomer)
	write.Post("/customers", h.createCustomer)
	write.Put("/customers/{customerID}", h.updateCustomer)
	write.Delete("/customers/{customerID}", h.deleteCustomer)
}

type customerPageResponse struct {
	Items    []customerPayload `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Total    int               `json:"total"`
}

func (h *CustomerHandlers) searchCustomers(w http.ResponseWriter, r *http.Request) {
	if h.customers == nil {
		writeUnavailable(w, r, "customer_service_unavailable", "customer service unavailable")
		return
	}
	page, err := pagination.ParsePage(r.URL.Query())
	if err != nil {
		writeInvalid(w, r, err.Error())
		return
	}
	created, err := parseRangeParams(r, h.loc)
	if err != nil {
		writeInvalid(w, r, "from and to must be YYYY-MM-DD or RFC3339")
		return
	}

	result, err := h.customers.SearchCustomers(r.Context(), domain.CustomerQuery{
		Search:  r.URL.Query().Get("q"),
		Created: created,
		Page:    page.Number,
		Size:    page.Size,
	})
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, customerPageResponse{
		Items:    newCustomerPayloads(result.Items),
		Page:     result.Page,
		PageSize: result.PageSize,
		Total:    result.Total,
	})
}

func (h *CustomerHandlers) suggestCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		writeUnavailable(w, r, "customer_service_unavailable", "customer service unavailable")
		return
	}
	if h.suggest != nil {
		key := ""
		if session, ok := services.SessionFromContext(ctx); ok {
			key = session.UID
		}
		if !h.suggest.Allow(key) {
			w.Header().Set("Retry-After", "60")
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many suggestion requests", http.StatusTooManyRequests))
			return
		}
	}

	matches, err := h.customers.SuggestCustomers(ctx, strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": newCustomerPayloads(matches)})
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	if h.customers == nil {
		writeUnavailable(w, r, "customer_service_unavailable", "customer service unavailable")
		return
	}
	customer, err := h.customers.GetCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newCustomerPayload(customer))
}

func (h *CustomerHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	if h.customers == nil {
		writeUnavailable(w, r, "customer_service_unavailable", "customer service unavailable")
		return
	}
	var req customerRequest
	if !decodeJSONBody(w, r, maxCustomerBodySize, &req) {
		return
	}
	customer, err := h.customers.CreateCustomer(r.Context(), services.CustomerCommand(req))
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newCustomerPayload(customer))
}

func (h *CustomerHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	if h.customers == nil {
		writeUnavailable(w, r, "customer_service_unavailable", "customer service unavailable")
		return
	}
	var req customerRequest
	if !decodeJSONBody(w, r, maxCustomerBodySize, &req) {
		return
	}
	customer, err := h.customers.UpdateCustomer(r.Context(), chi.URLParam(r, "customerID"), services.CustomerCommand(req))
	if err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newCustomerPayload(customer))
}

func (h *CustomerHandlers) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if h.customers == nil {
		writeUnavailable(w, r, "customer_service_unavailable", "customer service unavailable")
		return
	}
	if err := h.customers.DeleteCustomer(r.Context(), chi.URLParam(r, "customerID")); err != nil {
		writeCustomerError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("customer_store_unavailable", "customer store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process customer request", http.StatusInternalServerError))
	}
}
