package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pixora/backend/internal/auth"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/middleware"
	"github.com/pixora/backend/pkg/response"
)

// writeError translates a service error into the response envelope. Nothing
// partial is ever reported as success.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var validation *domain.ValidationError
	var consistency *domain.ConsistencyError

	switch {
	case errors.As(err, &validation):
		response.ValidationFailed(w, []domain.ValidationError{*validation})
	case errors.As(err, &consistency):
		logger.Error("Relationship left one-sided",
			zap.Bool("fatal_consistency", true),
			zap.String("op", consistency.Op),
			zap.String("actor", consistency.Actor.String()),
			zap.String("target", consistency.Target.String()),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
		response.ConsistencyFailure(w, "relationship update was only partially applied")
	case errors.Is(err, auth.ErrExpiredToken):
		response.Unauthorized(w, "token has expired")
	case errors.Is(err, auth.ErrInvalidToken):
		response.Unauthorized(w, "invalid token")
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		response.Conflict(w, err.Error())
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrSelfReference):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, err.Error())
	default:
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
		response.InternalError(w, "internal server error")
	}
}
