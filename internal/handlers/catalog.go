package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const maxCatalogBodySize = 16 * 1024

type upsertServiceRequest struct {
	Name         string      `json:"name" validate:"required,max=120"`
	Description  string      `json:"description" validate:"max=2000"`
	Category     string      `json:"category" validate:"required"`
	Price        json.Number `json:"price" validate:"required"`
	VehicleType  string      `json:"vehicle_type"`
	Status       string      `json:"status"`
	Supplier     string      `json:"supplier" validate:"max=120"`
	Discountable bool        `json:"discountable"`
	ImageURL     string      `json:"image_url" validate:"omitempty,url"`
	Tier         string      `json:"tier"`
}

type imageUploadRequest struct {
	FileName    string `json:"file_name" validate:"required,max=200"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"required,gt=0"`
}

type imageUploadResponse struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expires_at"`
	PublicURL string            `json:"public_url"`
}

// CatalogHandlers exposes the service catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs CatalogHandlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /services endpoints. Reads need catalog.read, mutations catalog.write.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	read := r.With(auth.RequireCapability(auth.CapCatalogRead))
	write := r.With(auth.RequireCapability(auth.CapCatalogWrite))

	read.Get("/services", h.listServices)
	read.Get("/services/{serviceID}", h.getService)
	write.Post("/services", h.createService)
	write.Put("/services/{serviceID}", h.updateService)
	write.Delete("/services/{serviceID}", h.deleteService)
	write.Post("/services/{serviceID}:deactivate", h.deactivateService)
	write.Post("/services/{serviceID}/image:upload-url", h.issueImageUpload)
}

func (h *CatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeUnavailable(w, r, "catalog_unavailable", "catalog service unavailable")
		return
	}
	query := r.URL.Query()
	var filter domain.ServiceFilter
	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		category, ok := domain.ParseServiceCategory(raw)
		if !ok {
			writeInvalid(w, r, "unknown category")
			return
		}
		filter.Category = category
	}
	if raw := strings.TrimSpace(query.Get("vehicle_type")); raw != "" {
		vehicle, ok := domain.ParseVehicleType(raw)
		if !ok {
			writeInvalid(w, r, "unknown vehicle_type")
			return
		}
		filter.VehicleType = vehicle
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := domain.ParseServiceStatus(raw)
		if !ok {
			writeInvalid(w, r, "status must be Active or Inactive")
			return
		}
		filter.Status = status
	}

	offerings, err := h.catalog.ListServices(r.Context(), filter)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	items := make([]servicePayload, 0, len(offerings))
	for _, o := range offerings {
		items = append(items, newServicePayload(o))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) getService(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeUnavailable(w, r, "catalog_unavailable", "catalog service unavailable")
		return
	}
	offering, err := h.catalog.GetService(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newServicePayload(offering))
}

func (h *CatalogHandlers) createService(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeUnavailable(w, r, "catalog_unavailable", "catalog service unavailable")
		return
	}
	cmd, ok := decodeUpsertService(w, r)
	if !ok {
		return
	}
	offering, err := h.catalog.CreateService(r.Context(), cmd)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newServicePayload(offering))
}

func (h *CatalogHandlers) updateService(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeUnavailable(w, r, "catalog_unavailable", "catalog service unavailable")
		return
	}
	cmd, ok := decodeUpsertService(w, r)
	if !ok {
		return
	}
	offering, err := h.catalog.UpdateService(r.Context(), chi.URLParam(r, "serviceID"), cmd)
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newServicePayload(offering))
}

func (h *CatalogHandlers) deactivateService(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeUnavailable(w, r, "catalog_unavailable", "catalog service unavailable")
		return
	}
	offering, err := h.catalog.DeactivateService(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newServicePayload(offering))
}

func (h *CatalogHandlers) deleteService(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeUnavailable(w, r, "catalog_unavailable", "catalog service unavailable")
		return
	}
	if err := h.catalog.DeleteService(r.Context(), chi.URLParam(r, "serviceID")); err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeUnavailable(w, r, "catalog_unavailable", "catalog service unavailable")
		return
	}
	var req imageUploadRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req) {
		return
	}
	signed, publicURL, err := h.catalog.IssueImageUpload(r.Context(), services.ImageUploadCommand{
		ServiceID:   chi.URLParam(r, "serviceID"),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Size:        req.Size,
	})
	if err != nil {
		writeCatalogError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, imageUploadResponse{
		UploadURL: signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ExpiresAt: formatTime(signed.ExpiresAt),
		PublicURL: publicURL,
	})
}

func decodeUpsertService(w http.ResponseWriter, r *http.Request) (services.UpsertServiceCommand, bool) {
	var req upsertServiceRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req) {
		return services.UpsertServiceCommand{}, false
	}
	price, err := domain.ParseAmount(priceText(req.Price))
	if err != nil {
		writeInvalid(w, r, "price must be a non-negative number")
		return services.UpsertServiceCommand{}, false
	}
	return services.UpsertServiceCommand{
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		Price:        price,
		VehicleType:  req.VehicleType,
		Status:       req.Status,
		Supplier:     req.Supplier,
		Discountable: req.Discountable,
		ImageURL:     req.ImageURL,
		Tier:         req.Tier,
	}, true
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", "service not found", http.StatusNotFound))
	case errors.Is(err, services.ErrServiceInUse):
		httpx.WriteError(ctx, w, httpx.NewError("service_in_use", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrServiceInactive):
		httpx.WriteError(ctx, w, httpx.NewError("service_inactive", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
