package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/platform/pagination"
	"github.com/sauber-detailing/pos-api/internal/platform/requestctx"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const (
	maxOrderBodySize       = 32 * 1024
	defaultStreamHeartbeat = 15 * time.Second
)

type orderItemRequest struct {
	ID       string      `json:"id"`
	Name     string      `json:"name" validate:"required,max=120"`
	Price    json.Number `json:"price" validate:"required"`
	Custom   bool        `json:"custom"`
	ImageURL string      `json:"image_url" validate:"omitempty,url"`
	Category string      `json:"category"`
	Tier     string      `json:"tier"`
}

type createOrderRequest struct {
	CustomerName  string             `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string             `json:"customer_phone" validate:"max=32"`
	Vehicle       vehiclePayload     `json:"vehicle"`
	Items         []orderItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	Note          string             `json:"note" validate:"max=1000"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

// OrderHandlers exposes the order ledger and its live stream.
type OrderHandlers struct {
	orders    services.OrderService
	loc       *time.Location
	create    func(http.Handler) http.Handler
	heartbeat time.Duration
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithOrderCreateGuard wraps POST /orders, typically with the idempotency guard.
func WithOrderCreateGuard(mw func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.create = mw
	}
}

// WithOrderLocation sets the zone used to read calendar-date filters.
func WithOrderLocation(loc *time.Location) OrderOption {
	return func(h *OrderHandlers) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithStreamHeartbeat sets the keep-alive interval of /orders/stream.
func WithStreamHeartbeat(interval time.Duration) OrderOption {
	return func(h *OrderHandlers) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// NewOrderHandlers constructs OrderHandlers.
func NewOrderHandlers(orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders, loc: time.UTC, heartbeat: defaultStreamHeartbeat}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	read := r.With(auth.RequireCapability(auth.CapOrdersRead))
	read.Get("/orders", h.listOrders)
	read.Get("/orders/stream", h.streamOrders)
	read.Get("/orders/{orderID}", h.getOrder)

	create := r.With(auth.RequireCapability(auth.CapOrdersCompose))
	if h.create != nil {
		create = create.With(h.create)
	}
	create.Post("/orders", h.createOrder)

	r.With(auth.RequireCapability(auth.CapOrdersPay)).Post("/orders/{orderID}:pay", h.markPaid)
	r.With(auth.RequireCapability(auth.CapOrdersDelete)).Delete("/orders/{orderID}", h.deleteOrder)
}

func (h *OrderHandlers) parseFilter(r *http.Request, cursor bool) (domain.OrderFilter, error) {
	query := r.URL.Query()
	var filter domain.OrderFilter
	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status, ok := domain.ParsePaymentStatus(raw)
		if !ok {
			return domain.OrderFilter{}, errors.New("payment_status must be Paid or Unpaid")
		}
		filter.PaymentStatus = status
	}
	created, err := parseRangeParams(r, h.loc)
	if err != nil {
		return domain.OrderFilter{}, errors.New("from and to must be YYYY-MM-DD or RFC3339")
	}
	filter.Created = created
	if cursor {
		params, err := pagination.ParseParams(query)
		if err != nil {
			return domain.OrderFilter{}, err
		}
		filter.Pagination = domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}
	}
	return filter, nil
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeUnavailable(w, r, "order_service_unavailable", "order service unavailable")
		return
	}
	filter, err := h.parseFilter(r, true)
	if err != nil {
		writeInvalid(w, r, err.Error())
		return
	}
	page, err := h.orders.List(r.Context(), filter)
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         newOrderPayloads(page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeUnavailable(w, r, "order_service_unavailable", "order service unavailable")
		return
	}
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderPayload(order))
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeUnavailable(w, r, "order_service_unavailable", "order service unavailable")
		return
	}
	var req createOrderRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	items := make([]domain.LineItem, 0, len(req.Items))
	for i, item := range req.Items {
		price, err := domain.ParseAmount(priceText(item.Price))
		if err != nil {
			writeInvalid(w, r, fmt.Sprintf("items[%d].price must be a non-negative number", i))
			return
		}
		category, _ := domain.ParseServiceCategory(item.Category)
		tier, ok := domain.ParseTier(item.Tier)
		if !ok {
			writeInvalid(w, r, fmt.Sprintf("items[%d].tier is unknown", i))
			return
		}
		items = append(items, domain.LineItem{
			ID:       strings.TrimSpace(item.ID),
			Name:     item.Name,
			Price:    price,
			Custom:   item.Custom,
			ImageURL: item.ImageURL,
			Category: category,
			Tier:     tier,
		})
	}

	order, err := h.orders.Create(r.Context(), services.OrderDraft{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Vehicle:       req.Vehicle.toDomain(),
		Items:         items,
		Note:          req.Note,
	})
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, newOrderPayload(order))
}

func (h *OrderHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeUnavailable(w, r, "order_service_unavailable", "order service unavailable")
		return
	}
	order, err := h.orders.MarkPaid(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeUnavailable(w, r, "order_service_unavailable", "order service unavailable")
		return
	}
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeOrderError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type streamResult struct {
	snapshot services.OrderSnapshot
	err      error
}

// streamOrders pushes every ledger snapshot matching the filter as a server-sent event until
// the client disconnects. The subscription is closed on the way out.
func (h *OrderHandlers) streamOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(w, r, "order_service_unavailable", "order service unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "streaming is not supported", http.StatusInternalServerError))
		return
	}
	filter, err := h.parseFilter(r, false)
	if err != nil {
		writeInvalid(w, r, err.Error())
		return
	}
	if err := validateStreamFilter(filter); err != nil {
		writeInvalid(w, r, err.Error())
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sub := h.orders.Watch(ctx, filter)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	results := make(chan streamResult)
	go func() {
		defer close(results)
		for {
			snapshot, err := sub.Next(ctx)
			select {
			case results <- streamResult{snapshot: snapshot, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	logger := requestctx.Logger(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case res, open := <-results:
			if !open {
				return
			}
			if res.err != nil {
				if errors.Is(res.err, services.ErrSubscriptionClosed) || ctx.Err() != nil {
					return
				}
				logger.Warn("order stream ended", zap.Error(res.err))
				_ = writeEvent(w, "error", map[string]string{"error": "stream_unavailable"})
				flusher.Flush()
				return
			}
			if err := writeEvent(w, "snapshot", orderListResponse{Items: newOrderPayloads(res.snapshot.Orders)}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func validateStreamFilter(filter domain.OrderFilter) error {
	r := filter.Created
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return errors.New("created range ends before it starts")
	}
	return nil
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order store unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process order request", http.StatusInternalServerError))
	}
}
