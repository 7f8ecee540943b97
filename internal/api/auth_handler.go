package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/middleware"
	"github.com/pixora/backend/pkg/response"
	"github.com/pixora/backend/pkg/validator"
)

// AuthHandler handles session endpoints. Tokens are issued by the identity
// provider; these endpoints only register and unregister them locally.
type AuthHandler struct {
	accounts *domain.AccountService
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *domain.AccountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
}

// Register creates the local account for the bearer token's identity
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		response.Unauthorized(w, "missing authorization header")
		return
	}

	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	var errs validator.ValidationErrors
	if !validator.ValidateHandle(domain.NormalizeHandle(req.Handle)) {
		errs.Add("handle", "must be 3-30 letters, digits, underscores or dots")
	}
	if !validator.ValidateDisplayName(req.DisplayName) {
		errs.Add("displayName", "must be at most 100 characters")
	}
	if errs.HasErrors() {
		response.ValidationFailed(w, errs)
		return
	}

	account, err := h.accounts.Register(r.Context(), token, req.DisplayName, req.Handle)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Created(w, account.ToResponse())
}

// Login registers the bearer token as a session of its identity's account
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		response.Unauthorized(w, "missing authorization header")
		return
	}

	account, err := h.accounts.Login(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.OK(w, account.ToResponse())
}

// Logout unregisters the token the request was authenticated with
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.GetToken(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	if err := h.accounts.Logout(r.Context(), token); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.OK(w, map[string]string{"message": "logged out"})
}
