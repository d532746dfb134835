package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type catalogService interface {
	List(ctx context.Context, schoolID string, kind models.CatalogKind, query dto.CatalogListQuery) (interface{}, *models.Pagination, error)
	Get(ctx context.Context, schoolID string, kind models.CatalogKind, id string) (interface{}, error)
	SaveTimeSlot(ctx context.Context, schoolID, id string, req dto.TimeSlotRequest) (*models.TimeSlot, error)
	SaveSubject(ctx context.Context, schoolID, id string, req dto.SubjectRequest) (*models.Subject, error)
	SaveTeacher(ctx context.Context, schoolID, id string, req dto.TeacherRequest) (*models.Teacher, error)
	SaveRoom(ctx context.Context, schoolID, id string, req dto.RoomRequest) (*models.Room, error)
	SaveClass(ctx context.Context, schoolID, id string, req dto.SchoolClassRequest) (*models.SchoolClass, error)
	Delete(ctx context.Context, schoolID string, kind models.CatalogKind, id string) error
}

// CatalogHandler serves CRUD for time slots, subjects, teachers, rooms and classes.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(svc catalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// List godoc
// @Summary List a catalog collection
// @Tags Catalog
// @Produce json
// @Param kind path string true "timeslots, subjects, teachers, rooms or classes"
// @Param search query string false "Name or code contains"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetable/catalog/{kind} [get]
func (h *CatalogHandler) List(c *gin.Context) {
	school, kind, ok := h.scope(c)
	if !ok {
		return
	}
	var query dto.CatalogListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), school, kind, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a catalog record
// @Tags Catalog
// @Produce json
// @Param kind path string true "Collection"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/catalog/{kind}/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	school, kind, ok := h.scope(c)
	if !ok {
		return
	}
	record, err := h.service.Get(c.Request.Context(), school, kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Create a catalog record
// @Tags Catalog
// @Accept json
// @Produce json
// @Param kind path string true "Collection"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/catalog/{kind} [post]
func (h *CatalogHandler) Create(c *gin.Context) {
	school, kind, ok := h.scope(c)
	if !ok {
		return
	}
	record, err := h.save(c, school, kind, "")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Replace godoc
// @Summary Replace a catalog record
// @Tags Catalog
// @Accept json
// @Produce json
// @Param kind path string true "Collection"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/catalog/{kind}/{id} [put]
func (h *CatalogHandler) Replace(c *gin.Context) {
	school, kind, ok := h.scope(c)
	if !ok {
		return
	}
	record, err := h.save(c, school, kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete a catalog record
// @Description Fails with 422 while any timetable entry references the record.
// @Tags Catalog
// @Param kind path string true "Collection"
// @Param id path string true "Record ID"
// @Success 204
// @Failure 422 {object} response.Envelope
// @Router /timetable/catalog/{kind}/{id} [delete]
func (h *CatalogHandler) Delete(c *gin.Context) {
	school, kind, ok := h.scope(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), school, kind, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *CatalogHandler) scope(c *gin.Context) (string, models.CatalogKind, bool) {
	school, ok := schoolFromContext(c)
	if !ok {
		return "", "", false
	}
	kind, err := service.ParseCatalogKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return "", "", false
	}
	return school, kind, true
}

// save decodes the body for kind and hands it to the matching service call.
func (h *CatalogHandler) save(c *gin.Context, school string, kind models.CatalogKind, id string) (interface{}, error) {
	ctx := c.Request.Context()
	switch kind {
	case models.CatalogTimeSlots:
		var req dto.TimeSlotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidPayload(err)
		}
		return h.service.SaveTimeSlot(ctx, school, id, req)
	case models.CatalogSubjects:
		var req dto.SubjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidPayload(err)
		}
		return h.service.SaveSubject(ctx, school, id, req)
	case models.CatalogTeachers:
		var req dto.TeacherRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidPayload(err)
		}
		return h.service.SaveTeacher(ctx, school, id, req)
	case models.CatalogRooms:
		var req dto.RoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidPayload(err)
		}
		return h.service.SaveRoom(ctx, school, id, req)
	default:
		var req dto.SchoolClassRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidPayload(err)
		}
		return h.service.SaveClass(ctx, school, id, req)
	}
}
