package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const maxStaffBodySize = 4 * 1024

type createStaffRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,max=120"`
	Role     string `json:"role" validate:"required,oneof=admin cashier"`
}

type staffPayload struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
}

func newStaffPayload(m domain.StaffMember) staffPayload {
	return staffPayload{
		UID:       m.UID,
		Name:      m.Name,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
		Role:      m.Role,
		CreatedAt: formatTime(m.CreatedAt),
	}
}

// StaffHandlers lets admins manage staff accounts.
type StaffHandlers struct {
	staff services.StaffService
}

// NewStaffHandlers constructs StaffHandlers.
func NewStaffHandlers(staff services.StaffService) *StaffHandlers {
	return &StaffHandlers{staff: staff}
}

// Routes registers the /staff endpoints.
func (h *StaffHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	admin := r.With(auth.RequireCapability(auth.CapStaffManage))
	admin.Get("/staff", h.listStaff)
	admin.Post("/staff", h.createStaff)
}

func (h *StaffHandlers) listStaff(w http.ResponseWriter, r *http.Request) {
	if h.staff == nil {
		writeUnavailable(w, r, "staff_service_unavailable", "staff service unavailable")
		return
	}
	members, err := h.staff.ListStaff(r.Context())
	if err != nil {
		writeStaffError(r.Context(), w, err)
		return
	}
	items := make([]staffPayload, 0, len(members))
	for _, m := range members {
		items = append(items, newStaffPayload(m))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *StaffHandlers) createStaff(w http.ResponseWriter, r *http.Request) {
	if h.staff == nil {
		writeUnavailable(w, r, "staff_service_unavailable", "staff service unavailable")
		return
	}
	var req createStaffRequest
	if !decodeJSONBody(w, r, maxStaffBodySize, &req) {
		return
	}
	member, err := h.staff.CreateStaff(r.Context(), services.CreateStaffCommand(req))
	if err != nil {
		writeStaffError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newStaffPayload(member))
}

func writeStaffError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStaffInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStaffNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("staff_not_found", "staff profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStaffConflict):
		httpx.WriteError(ctx, w, httpx.NewError("staff_exists", "an account with this email already exists", http.StatusConflict))
	case errors.Is(err, services.ErrStaffUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("staff_unavailable", "staff directory unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process staff request", http.StatusInternalServerError))
	}
}
