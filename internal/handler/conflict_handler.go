package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type conflictService interface {
	Report(ctx context.Context, schoolID string) (*models.ConflictReport, bool, error)
	Suggest(ctx context.Context, schoolID, conflictID string, includeTimeSlots bool) (*models.Conflict, []models.Suggestion, error)
}

// ConflictHandler exposes the tenant conflict report and the resolution advisor.
type ConflictHandler struct {
	service conflictService
}

// NewConflictHandler constructs the handler.
func NewConflictHandler(svc conflictService) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// SuggestionResponse pairs a conflict with its ranked suggestions.
type SuggestionResponse struct {
	Conflict    *models.Conflict    `json:"conflict"`
	Suggestions []models.Suggestion `json:"suggestions"`
}

// List godoc
// @Summary List current conflicts
// @Tags Conflicts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/conflicts [get]
func (h *ConflictHandler) List(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	report, hit, err := h.service.Report(c.Request.Context(), school)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	meta := middleware.ExtractMeta(c)
	meta["count"] = len(report.Conflicts)
	response.JSON(c, http.StatusOK, report, nil, meta)
}

// Suggest godoc
// @Summary Suggest resolutions for a conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body dto.SuggestRequest false "Options"
// @Param includeTimeSlots query bool false "Also propose time slot moves"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/conflicts/{id}:suggest [post]
func (h *ConflictHandler) Suggest(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.SuggestRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return
		}
	}
	conflict, suggestions, err := h.service.Suggest(c.Request.Context(), school, c.Param("id"), req.IncludeTimeSlots)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, SuggestionResponse{Conflict: conflict, Suggestions: suggestions}, nil)
}
