package handler

import (
	"errors"
	"net/http"

	"churchcoin-backend/internal/importer"
	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/services/detect"
	"churchcoin-backend/internal/services/imports"
	"churchcoin-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// churchID reads the tenant from the X-Church-ID header. Authentication is
// handled upstream; here we only need the scope.
func churchID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader("X-Church-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-Church-ID header"})
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrCrossTenantReference):
		return http.StatusForbidden
	case errors.Is(err, imports.ErrBatchNotFound),
		errors.Is(err, reconciliation.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, imports.ErrInvalidTransition),
		errors.Is(err, detect.ErrBatchFinished),
		errors.Is(err, reconciliation.ErrSessionClosed),
		errors.Is(err, reconciliation.ErrAlreadyMatched):
		return http.StatusConflict
	case errors.Is(err, importer.ErrMalformedCSV):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
