package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/electrocart/api/internal/domain"
	"github.com/electrocart/api/internal/platform/httpx"
	"github.com/electrocart/api/internal/services"
)

const maxRoleBodySize = 4 * 1024

// AdminUserHandlers exposes back-office user management.
type AdminUserHandlers struct {
	users services.UserService
}

// NewAdminUserHandlers constructs the admin user handlers.
func NewAdminUserHandlers(users services.UserService) *AdminUserHandlers {
	return &AdminUserHandlers{users: users}
}

// Routes wires the admin user endpoints onto the provided router.
func (h *AdminUserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/users", h.listUsers)
	r.Put("/users/{uid}/role", h.changeRole)
}

type userPayload struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func buildUserPayload(user domain.User) userPayload {
	return userPayload{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		CreatedAt:   user.CreatedAt,
	}
}

func (h *AdminUserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.users.List(ctx, pageSizeParam(r), strings.TrimSpace(r.URL.Query().Get("pageToken")))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	payload := struct {
		Users         []userPayload `json:"users"`
		NextPageToken string        `json:"nextPageToken,omitempty"`
		HasMore       bool          `json:"hasMore"`
	}{
		Users:         make([]userPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
		HasMore:       page.HasMore,
	}
	for _, user := range page.Items {
		payload.Users = append(payload.Users, buildUserPayload(user))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *AdminUserHandlers) changeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	uid := chi.URLParam(r, "uid")
	// Admins cannot demote themselves; it would lock the last admin out.
	if uid == identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cannot change your own role", http.StatusBadRequest))
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSONBody(r, maxRoleBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	user, err := h.users.ChangeRole(ctx, uid, req.Role)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildUserPayload(*user))
}

func (h *AdminUserHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput), isInvalidPageToken(err):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "user request failed", http.StatusInternalServerError))
	}
}
