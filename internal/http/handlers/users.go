package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/hongminglow/userhub/internal/http/respond"
	"github.com/hongminglow/userhub/internal/logging"
	"github.com/hongminglow/userhub/internal/middleware"
	"github.com/hongminglow/userhub/internal/models/dto"
	"github.com/hongminglow/userhub/internal/storage"
	"github.com/hongminglow/userhub/internal/users"
)

// UsersHandler exposes profile, password and deletion endpoints by user id.
// Every route requires a bearer token issued to that same user.
type UsersHandler struct {
	users  users.Repository
	tokens middleware.TokenVerifier
	log    logging.Logger
}

func NewUsersHandler(repo users.Repository, tokens middleware.TokenVerifier, log logging.Logger) *UsersHandler {
	return &UsersHandler{users: repo, tokens: tokens, log: log}
}

func (h *UsersHandler) Register(mux *http.ServeMux) {
	owner := middleware.RequireOwner(h.tokens, "id")
	mux.Handle("PUT /api/v1/auth/users/{id}", owner(http.HandlerFunc(h.handleUpdate)))
	mux.Handle("PUT /api/v1/auth/users/{id}/password", owner(http.HandlerFunc(h.handleUpdatePassword)))
	mux.Handle("DELETE /api/v1/auth/users/{id}", owner(http.HandlerFunc(h.handleDelete)))
}

func (h *UsersHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	updated, err := h.users.UpdateUser(r.Context(), id, req.Email, req.Name)
	if err != nil {
		h.logUnexpected(r, "update user failed", err)
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "user updated", updated)
}

func (h *UsersHandler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpdatePasswordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	updated, err := h.users.UpdatePassword(r.Context(), id, req.Password)
	if err != nil {
		h.logUnexpected(r, "update password failed", err)
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "password updated", updated)
}

func (h *UsersHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := h.users.DeleteUser(r.Context(), id)
	if err != nil {
		h.logUnexpected(r, "delete user failed", err)
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", dto.DeleteUserResponse{Deleted: n})
}

func (h *UsersHandler) logUnexpected(r *http.Request, msg string, err error) {
	switch storage.KindOf(err) {
	case storage.KindValidation, storage.KindConflict, storage.KindNotFound:
		return
	}
	h.log.Error(r.Context(), msg, "error", err)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
