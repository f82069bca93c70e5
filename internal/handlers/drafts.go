package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/platform/idempotency"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const maxDraftBodySize = 8 * 1024

type draftCustomerRequest struct {
	Name    string         `json:"name" validate:"max=120"`
	Phone   string         `json:"phone" validate:"max=32"`
	Vehicle vehiclePayload `json:"vehicle"`
	Note    string         `json:"note" validate:"max=1000"`
}

type customItemRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type draftMutationResponse struct {
	Draft draftPayload `json:"draft"`
	Added *bool        `json:"added,omitempty"`
}

type draftSubmitResponse struct {
	Submitted bool          `json:"submitted"`
	Order     *orderPayload `json:"order,omitempty"`
}

// DraftHandlers exposes the operator's in-progress order.
type DraftHandlers struct {
	composer services.ComposerService
	submit   func(http.Handler) http.Handler
}

// DraftOption customises DraftHandlers.
type DraftOption func(*DraftHandlers)

// WithDraftSubmitGuard wraps the submit route, typically with the idempotency guard.
func WithDraftSubmitGuard(mw func(http.Handler) http.Handler) DraftOption {
	return func(h *DraftHandlers) {
		h.submit = mw
	}
}

// NewDraftHandlers constructs DraftHandlers.
func NewDraftHandlers(composer services.ComposerService, opts ...DraftOption) *DraftHandlers {
	h := &DraftHandlers{composer: composer}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /drafts/current endpoints.
func (h *DraftHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	compose := r.With(auth.RequireCapability(auth.CapOrdersCompose))
	compose.Get("/drafts/current", h.getDraft)
	compose.Delete("/drafts/current", h.discardDraft)
	compose.Put("/drafts/current/customer", h.setCustomer)
	compose.Post("/drafts/current/services/{serviceID}:toggle", h.toggleService)
	compose.Post("/drafts/current/custom-items", h.addCustomItem)
	compose.Delete("/drafts/current/items/{itemID}", h.removeItem)

	submit := compose
	if h.submit != nil {
		submit = compose.With(h.submit)
	}
	submit.Post("/drafts/current:submit", h.submitDraft)
}

func (h *DraftHandlers) getDraft(w http.ResponseWriter, r *http.Request) {
	if h.composer == nil {
		writeUnavailable(w, r, "composer_unavailable", "order composer unavailable")
		return
	}
	view, err := h.composer.Current(r.Context())
	if err != nil {
		writeDraftError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftMutationResponse{Draft: newDraftPayload(view)})
}

func (h *DraftHandlers) discardDraft(w http.ResponseWriter, r *http.Request) {
	if h.composer == nil {
		writeUnavailable(w, r, "composer_unavailable", "order composer unavailable")
		return
	}
	if err := h.composer.Discard(r.Context()); err != nil {
		writeDraftError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DraftHandlers) setCustomer(w http.ResponseWriter, r *http.Request) {
	if h.composer == nil {
		writeUnavailable(w, r, "composer_unavailable", "order composer unavailable")
		return
	}
	var req draftCustomerRequest
	if !decodeJSONBody(w, r, maxDraftBodySize, &req) {
		return
	}
	view, err := h.composer.SetCustomer(r.Context(), services.DraftCustomer{
		Name:    req.Name,
		Phone:   req.Phone,
		Vehicle: req.Vehicle.toDomain(),
		Note:    req.Note,
	})
	if err != nil {
		writeDraftError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftMutationResponse{Draft: newDraftPayload(view)})
}

func (h *DraftHandlers) toggleService(w http.ResponseWriter, r *http.Request) {
	if h.composer == nil {
		writeUnavailable(w, r, "composer_unavailable", "order composer unavailable")
		return
	}
	view, err := h.composer.ToggleService(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		writeDraftError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftMutationResponse{Draft: newDraftPayload(view)})
}

// addCustomItem reports added=false instead of failing when the name or price is unusable;
// the draft is left unchanged in that case.
func (h *DraftHandlers) addCustomItem(w http.ResponseWriter, r *http.Request) {
	if h.composer == nil {
		writeUnavailable(w, r, "composer_unavailable", "order composer unavailable")
		return
	}
	var req customItemRequest
	if !decodeJSONBody(w, r, maxDraftBodySize, &req) {
		return
	}
	view, added, err := h.composer.AddCustomItem(r.Context(), req.Name, req.Price)
	if err != nil {
		writeDraftError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftMutationResponse{Draft: newDraftPayload(view), Added: &added})
}

func (h *DraftHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	if h.composer == nil {
		writeUnavailable(w, r, "composer_unavailable", "order composer unavailable")
		return
	}
	view, err := h.composer.RemoveLineItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeDraftError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, draftMutationResponse{Draft: newDraftPayload(view)})
}

func (h *DraftHandlers) submitDraft(w http.ResponseWriter, r *http.Request) {
	if h.composer == nil {
		writeUnavailable(w, r, "composer_unavailable", "order composer unavailable")
		return
	}
	order, submitted, err := h.composer.Submit(r.Context())
	if err != nil {
		writeDraftError(r.Context(), w, err)
		return
	}
	if !submitted {
		idempotency.Forget(w)
		writeJSONResponse(w, http.StatusOK, draftSubmitResponse{Submitted: false})
		return
	}
	payload := newOrderPayload(order)
	writeJSONResponse(w, http.StatusCreated, draftSubmitResponse{Submitted: true, Order: &payload})
}

func writeDraftError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrComposerNoSession):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "operator session required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrCatalogNotFound),
		errors.Is(err, services.ErrServiceInactive),
		errors.Is(err, services.ErrCatalogUnavailable):
		writeCatalogError(ctx, w, err)
	default:
		writeOrderError(ctx, w, err)
	}
}
