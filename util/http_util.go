// util/http_util.go
package util

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	consentinel_errors "github.com/medtrail/consentinel/errors"
	logger "github.com/medtrail/consentinel/logging"
)

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

// RespondWithDomainError maps a sentinel error onto an HTTP status. Client
// errors surface their own message; anything unrecognized is treated as
// internal and the response body never carries the underlying error text.
func RespondWithDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, consentinel_errors.ErrConsentNotFound),
		errors.Is(err, consentinel_errors.ErrPolicyNotFound),
		errors.Is(err, consentinel_errors.ErrOrganizationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, consentinel_errors.ErrInvalidConsentData),
		errors.Is(err, consentinel_errors.ErrEmptyCategories),
		errors.Is(err, consentinel_errors.ErrConsentExpiry),
		errors.Is(err, consentinel_errors.ErrInvalidPolicyData),
		errors.Is(err, consentinel_errors.ErrInvalidPolicyRules),
		errors.Is(err, consentinel_errors.ErrInvalidOrgData),
		errors.Is(err, consentinel_errors.ErrMissingOrganization),
		errors.Is(err, consentinel_errors.ErrUnknownAction),
		errors.Is(err, consentinel_errors.ErrInvalidPagination):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, consentinel_errors.ErrConsentConflict),
		errors.Is(err, consentinel_errors.ErrPolicyConflict),
		errors.Is(err, consentinel_errors.ErrOrgConflict),
		errors.Is(err, consentinel_errors.ErrBulkImportInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, consentinel_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		logger.Error("Internal error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// GetActorID returns the authenticated actor set by the auth middleware.
func GetActorID(c *gin.Context) (string, error) {
	actorID, exists := c.Get("actorID")
	if !exists {
		return "", consentinel_errors.ErrUnauthorized
	}
	id, ok := actorID.(string)
	if !ok || id == "" {
		return "", consentinel_errors.ErrUnauthorized
	}
	return id, nil
}

// GetActorRole returns the authenticated actor's role, or "" when absent.
func GetActorRole(c *gin.Context) string {
	role, exists := c.Get("actorRole")
	if !exists {
		return ""
	}
	if r, ok := role.(string); ok {
		return r
	}
	return ""
}
