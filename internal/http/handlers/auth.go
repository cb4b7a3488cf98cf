package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/hongminglow/userhub/internal/auth"
	"github.com/hongminglow/userhub/internal/http/respond"
	"github.com/hongminglow/userhub/internal/logging"
	"github.com/hongminglow/userhub/internal/models"
	"github.com/hongminglow/userhub/internal/models/dto"
	"github.com/hongminglow/userhub/internal/storage"
	"github.com/hongminglow/userhub/internal/users"
)

const maxBodyBytes = 1 << 20

// AuthHandler owns registration, login and user listing.
type AuthHandler struct {
	users  users.Repository
	tokens *auth.TokenManager
	log    logging.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(repo users.Repository, tokens *auth.TokenManager, log logging.Logger) *AuthHandler {
	return &AuthHandler{users: repo, tokens: tokens, log: log}
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/users", h.handleListUsers)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRegister(w, r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	created, err := h.users.CreateUser(r.Context(), models.NewUser{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		if storage.KindOf(err) != storage.KindValidation && storage.KindOf(err) != storage.KindConflict {
			h.log.Error(r.Context(), "create user failed", "error", err)
		}
		respond.StoreError(w, err)
		return
	}

	out := dto.RegisterResponse{User: &created}
	if h.tokens != nil {
		token, err := h.tokens.Generate(created)
		if err != nil {
			h.log.Error(r.Context(), "generate token failed", "user_id", created.ID, "error", err)
		} else {
			out.Token = &token
		}
	}
	respond.JSON(w, http.StatusCreated, "user created successfully", out)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Error(r.Context(), "login failed", "error", err)
		respond.StoreError(w, err)
		return
	}
	if user == nil {
		respond.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if h.tokens == nil {
		respond.Error(w, http.StatusServiceUnavailable, "token issuing is not configured")
		return
	}
	token, err := h.tokens.Generate(*user)
	if err != nil {
		h.log.Error(r.Context(), "generate token failed", "user_id", user.ID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", dto.LoginResponse{Token: token, User: *user})
}

func (h *AuthHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
		found, err := h.users.FindByEmail(r.Context(), email)
		if err != nil {
			h.log.Error(r.Context(), "find user failed", "error", err)
			respond.StoreError(w, err)
			return
		}
		if found == nil {
			respond.Error(w, http.StatusNotFound, "user not found")
			return
		}
		respond.JSON(w, http.StatusOK, "ok", found)
		return
	}

	all, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "list users failed", "error", err)
		respond.StoreError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", all)
}

// decodeRegister accepts a JSON body or an urlencoded/multipart form.
func decodeRegister(w http.ResponseWriter, r *http.Request) (dto.RegisterRequest, error) {
	var req dto.RegisterRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, err
		}
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
		req.Name = r.FormValue("name")
		return req, nil
	default:
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
}
