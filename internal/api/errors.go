package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lars-symptom-tracker/internal/domain"
	"github.com/lars-symptom-tracker/internal/middleware"
)

// errorStatus maps a core error onto an HTTP status and API error
func errorStatus(err error, requestID string) (int, *domain.APIError) {
	var incomplete *domain.IncompleteAnswersError
	var validation *domain.ValidationError

	switch {
	case errors.As(err, &incomplete):
		apiErr := domain.NewAPIError(domain.ErrCodeIncompleteAnswers,
			"Please answer every question before scoring", incomplete.Error(), requestID)
		apiErr.Fields = map[string]any{
			"missing": nonNilKeys(incomplete.Missing),
			"invalid": nonNilKeys(incomplete.Invalid),
		}
		return http.StatusUnprocessableEntity, apiErr
	case errors.As(err, &validation):
		apiErr := domain.NewAPIError(domain.ErrCodeValidation, validation.Message, validation.Error(), requestID)
		apiErr.Fields = map[string]any{"field": validation.Field}
		return http.StatusBadRequest, apiErr
	case errors.Is(err, domain.ErrDuplicateEntry):
		return http.StatusConflict, domain.NewAPIError(domain.ErrCodeDuplicateEntry,
			"Entry already exists", "", requestID)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, domain.NewAPIError(domain.ErrCodeStoreUnavailable,
			"Could not save your entry, please try again", "", requestID)
	case errors.Is(err, domain.ErrAssistantUnavailable):
		return http.StatusServiceUnavailable, domain.NewAPIError(domain.ErrCodeAssistantUnavailable,
			"The assistant is unavailable, please try again later", "", requestID)
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, domain.NewAPIError(domain.ErrCodeForbidden, "Forbidden", "", requestID)
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.NewAPIError(domain.ErrCodeNotFound, "Not found", "", requestID)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.NewAPIError(domain.ErrCodeInternalServer, "Request timeout", "", requestID)
	default:
		return http.StatusInternalServerError, domain.NewAPIError(domain.ErrCodeInternalServer,
			"Internal server error", "", requestID)
	}
}

func nonNilKeys(keys []domain.QuestionKey) []domain.QuestionKey {
	if keys == nil {
		return []domain.QuestionKey{}
	}
	return keys
}

// respondError writes err as an APIError. Server-side failures are logged; details never leak.
func (s *Server) respondError(c *gin.Context, err error) {
	status, apiErr := errorStatus(err, c.GetString(middleware.CorrelationIDKey))
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"correlation_id": apiErr.RequestID,
			"path":           c.FullPath(),
			"status":         status,
		}).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, apiErr)
}

func badRequest(c *gin.Context, message string) {
	middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeValidation, message)
}
