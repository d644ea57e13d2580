package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reviewsync/internal/domain"
	"reviewsync/internal/provider"
	"reviewsync/internal/store"
)

// writeError maps service errors onto HTTP statuses. Provider failures are
// 502: the request was valid but an upstream system did not cooperate.
func writeError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "field": verr.Field, "detail": verr.Reason})
		return
	}
	var perr *provider.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrDuplicateMapping):
		c.JSON(http.StatusConflict, gin.H{"error": "business already mapped", "detail": err.Error()})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream provider failed", "detail": perr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "detail": err.Error()})
	}
}
