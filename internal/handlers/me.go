package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/services"
)

// MeHandlers describes the signed-in operator and lets them edit their own name.
type MeHandlers struct {
	staff services.StaffService
}

// NewMeHandlers constructs MeHandlers.
func NewMeHandlers(staff services.StaffService) *MeHandlers {
	return &MeHandlers{staff: staff}
}

// Routes registers GET and PUT /me.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/me", h.getMe)
	r.Put("/me", h.updateMe)
}

type updateProfileRequest struct {
	FirstName string `json:"first_name" validate:"required,max=60"`
	LastName  string `json:"last_name" validate:"max=60"`
}

type meResponse struct {
	UID          string   `json:"uid"`
	Email        string   `json:"email,omitempty"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
}

func (h *MeHandlers) getMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	caps := identity.Role.Capabilities()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	writeJSONResponse(w, http.StatusOK, meResponse{
		UID:          identity.UID,
		Email:        identity.Email,
		Name:         identity.DisplayName(),
		Role:         string(identity.Role),
		Capabilities: names,
	})
}

func (h *MeHandlers) updateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if h.staff == nil {
		writeUnavailable(w, r, "staff_service_unavailable", "staff service unavailable")
		return
	}
	var req updateProfileRequest
	if !decodeJSONBody(w, r, maxStaffBodySize, &req) {
		return
	}
	member, err := h.staff.UpdateProfile(ctx, identity.UID, services.UpdateProfileCommand(req))
	if err != nil {
		writeStaffError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newStaffPayload(member))
}
