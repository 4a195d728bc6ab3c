package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/electrocart/api/internal/platform/auth"
	"github.com/electrocart/api/internal/platform/httpx"
	"github.com/electrocart/api/internal/services"
)

const maxProfileBodySize = 8 * 1024

// MeHandlers exposes the authenticated user's profile.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs the profile handlers.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{authn: authn, users: users}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Post("/", h.ensureProfile)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	user, err := h.users.Get(ctx, identity.UID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found; sign in again", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildUserPayload(*user))
}

// ensureProfile upserts the profile document. Clients call it after sign-in.
func (h *MeHandlers) ensureProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req struct {
		DisplayName string `json:"displayName"`
	}
	// The body is optional; an empty one keeps the provider display name.
	if r.ContentLength > 0 {
		if err := decodeJSONBody(r, maxProfileBodySize, &req); err != nil {
			writeBodyError(ctx, w, err)
			return
		}
	}

	user, err := h.users.EnsureProfile(ctx, services.ProfileInput{
		UID:         identity.UID,
		Email:       identity.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "profile update failed", http.StatusInternalServerError))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildUserPayload(*user))
}
