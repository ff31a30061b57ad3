package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/services"
	"github.com/simaland/userapi/types"
)

// UserManager is the permission-gated user use-cases.
type UserManager interface {
	Create(ctx context.Context, ac auth.Context, in services.UserInput) (types.User, error)
	List(ctx context.Context, ac auth.Context) ([]types.UserView, error)
	Update(ctx context.Context, ac auth.Context, in services.UserInput) error
	Delete(ctx context.Context, ac auth.Context, id int) error
}

// UserHandler provides HTTP handlers for users.
type UserHandler struct {
	users UserManager
}

func NewUserHandler(users UserManager) *UserHandler {
	return &UserHandler{users: users}
}

// UserRouter registers user routes. The router must run after Authorize.
func UserRouter(r chi.Router, users UserManager) {
	handler := NewUserHandler(users)

	r.Post("/", handler.CreateUser)
	r.Get("/", handler.ListUsers)
	r.Patch("/", handler.UpdateUser)
	r.Delete("/", handler.DeleteUser)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	if !ac.CanWrite() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var in services.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondMalformed(w, r, err)
		return
	}

	user, err := h.users.Create(r.Context(), ac, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if users == nil {
		users = []types.UserView{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	if !ac.CanWrite() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var in services.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondMalformed(w, r, err)
		return
	}

	if err := h.users.Update(r.Context(), ac, in); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	if !ac.CanWrite() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req services.DeleteUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondMalformed(w, r, err)
		return
	}

	if err := h.users.Delete(r.Context(), ac, req.ID); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK)
}
