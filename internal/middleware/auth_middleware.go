package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixora/backend/internal/auth"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/pkg/response"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	AccountKey contextKey = "account"
	TokenKey   contextKey = "token"
)

// Authenticator resolves a bearer token to its local account
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Account, error)
}

// AuthMiddleware requires a token the identity provider accepts and that is
// registered on a local account. A provider rejection is 401; a valid token
// with no local account is 404.
func AuthMiddleware(authenticator Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return authMiddleware(authenticator, logger, false)
}

// WebSocketAuthMiddleware is AuthMiddleware that also accepts ?token= since
// browsers cannot set headers on a websocket upgrade.
func WebSocketAuthMiddleware(authenticator Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return authMiddleware(authenticator, logger, true)
}

func authMiddleware(authenticator Authenticator, logger *zap.Logger, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r, allowQuery)
			if token == "" {
				response.Unauthorized(w, msg)
				return
			}

			account, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					response.Unauthorized(w, "token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					response.Unauthorized(w, "invalid token")
				case errors.Is(err, domain.ErrTokenNotRegistered):
					response.NotFound(w, "no user found for this token")
				default:
					logger.Error("Failed to authenticate request", zap.Error(err))
					response.InternalError(w, "failed to authenticate")
				}
				return
			}

			setRequestUser(r.Context(), account.ID.String())

			ctx := context.WithValue(r.Context(), UserIDKey, account.ID)
			ctx = context.WithValue(ctx, AccountKey, account)
			ctx = context.WithValue(ctx, TokenKey, token)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request, allowQuery bool) (token, problem string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if allowQuery {
			if t := r.URL.Query().Get(tokenQueryParam); t != "" {
				return t, ""
			}
		}
		return "", "missing authorization header"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", "invalid authorization header format"
	}
	return parts[1], ""
}

// BearerToken extracts the raw token from the Authorization header
func BearerToken(r *http.Request) string {
	token, _ := bearerToken(r, false)
	return token
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetAccount extracts the authenticated account from context
func GetAccount(ctx context.Context) (*domain.Account, bool) {
	account, ok := ctx.Value(AccountKey).(*domain.Account)
	return account, ok
}

// GetToken extracts the raw bearer token from context
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
