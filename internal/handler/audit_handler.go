package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type auditReader interface {
	ListRecent(ctx context.Context, schoolID string, limit int) ([]models.AuditLog, error)
}

// AuditHandler exposes the tenant's timetable write trail.
type AuditHandler struct {
	repo auditReader
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(repo auditReader) *AuditHandler {
	return &AuditHandler{repo: repo}
}

// List godoc
// @Summary List recent timetable writes
// @Tags Audit
// @Produce json
// @Param limit query int false "Maximum records (default 50, max 200)"
// @Success 200 {object} response.Envelope
// @Router /timetable/audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a number"))
		return
	}
	logs, err := h.repo.ListRecent(c.Request.Context(), school, limit)
	if err != nil {
		response.Error(c, appErrors.Storage(err, "failed to load audit trail"))
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
