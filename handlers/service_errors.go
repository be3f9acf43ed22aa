package handlers

import (
	"net/http"

	"github.com/shopauth/shopauth/services"
	"github.com/shopauth/shopauth/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. Unauthorized
// responses carry the domain error code so clients can tell a recoverable
// TOKEN_EXPIRED from a terminal rejection.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, err.Error()); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, services.GetErrorCode(err), err.Error()); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsForbiddenError(err):
		if err := utils.WriteForbidden(w, err.Error()); err != nil {
			logger.Error("failed to write forbidden response", zap.Error(err))
		}

	case services.IsConflictError(err):
		// Duplicate usernames and shop names render as 400 like the other
		// signup validation failures
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write duplicate response", zap.Error(err))
		}

	case services.IsUnavailableError(err):
		logger.Warn("service unavailable", zap.Error(err))
		if err := utils.WriteServiceUnavailable(w, ""); err != nil {
			logger.Error("failed to write unavailable response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log internal errors but return a generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
