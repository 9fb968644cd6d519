package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mivaca/backend/internal/ledger"
	"go.uber.org/zap"
)

const (
	errorInvalidRequest = "invalid_request"
	errorInternal       = "internal_error"
)

func statusForKind(kind ledger.ErrorKind) int {
	switch kind {
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindInvalidArgument:
		return http.StatusBadRequest
	case ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error body for a failed command or query.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		c.JSON(statusForKind(ledgerErr.Kind), gin.H{"error": ledgerErr.Reason, "code": ledgerErr.Code()})
		return
	}
	h.logger.Error("request failed",
		zap.String("route", c.FullPath()),
		zap.String("session_id", c.Param(sessionIDParam)),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": errorInternal})
}

func respondInvalidRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
}
