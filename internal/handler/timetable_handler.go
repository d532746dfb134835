package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// DefaultImportMaxFileBytes bounds an uploaded spreadsheet when no limit is configured.
const DefaultImportMaxFileBytes int64 = 10 << 20

type entryService interface {
	List(ctx context.Context, schoolID string, query dto.EntryListQuery) ([]models.TimetableEntry, *models.Pagination, error)
	Get(ctx context.Context, schoolID, id string) (*models.TimetableEntry, error)
	Occurrences(ctx context.Context, schoolID, id string, from, to *models.Date) ([]models.Date, error)
	Create(ctx context.Context, schoolID string, req dto.EntryRequest) (*models.TimetableEntry, error)
	Replace(ctx context.Context, schoolID, id string, req dto.EntryRequest) (*models.TimetableEntry, error)
	Delete(ctx context.Context, schoolID, id string) error
}

type entryImporter interface {
	ImportBatch(ctx context.Context, schoolID string, mode string, reqs []dto.EntryRequest) (*models.BatchResult, error)
	ParseSpreadsheet(r io.Reader) ([]dto.EntryRequest, error)
}

// TimetableHandler serves timetable entry endpoints.
type TimetableHandler struct {
	entries      entryService
	importer     entryImporter
	maxFileBytes int64
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(entries entryService, importer entryImporter, maxFileBytes int64) *TimetableHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultImportMaxFileBytes
	}
	return &TimetableHandler{entries: entries, importer: importer, maxFileBytes: maxFileBytes}
}

// List godoc
// @Summary List timetable entries
// @Tags Timetable
// @Produce json
// @Param classId query string false "Filter by class"
// @Param teacherId query string false "Filter by teacher"
// @Param roomId query string false "Filter by room"
// @Param dayOfWeek query int false "Filter by weekday (0 = Sunday)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetable/entries [get]
func (h *TimetableHandler) List(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var query dto.EntryListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	entries, pagination, err := h.entries.List(c.Request.Context(), school, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Get godoc
// @Summary Get timetable entry
// @Tags Timetable
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/entries/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	entry, err := h.entries.Get(c.Request.Context(), school, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Occurrences godoc
// @Summary Expand an entry into concrete dates
// @Tags Timetable
// @Produce json
// @Param id path string true "Entry ID"
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /timetable/entries/{id}/occurrences [get]
func (h *TimetableHandler) Occurrences(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	from, err := queryDate(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryDate(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	dates, err := h.entries.Occurrences(c.Request.Context(), school, c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, nil, map[string]interface{}{"count": len(dates)})
}

// Create godoc
// @Summary Create timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.EntryRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetable/entries [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	entry, err := h.entries.Create(c.Request.Context(), school, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResourceID(c, entry.ID)
	response.Created(c, entry)
}

// Replace godoc
// @Summary Replace timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.EntryRequest true "Entry payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries/{id} [put]
func (h *TimetableHandler) Replace(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	entry, err := h.entries.Replace(c.Request.Context(), school, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Delete timetable entry
// @Tags Timetable
// @Param id path string true "Entry ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /timetable/entries/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	if err := h.entries.Delete(c.Request.Context(), school, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkImport godoc
// @Summary Import many entries
// @Description Atomic mode commits all candidates or none; partial mode commits every clean candidate.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.BulkImportRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /timetable/entries:bulkImport [post]
func (h *TimetableHandler) BulkImport(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	h.runImport(c, school, req.Mode, req.Entries)
}

// ImportFile godoc
// @Summary Import entries from a spreadsheet
// @Tags Timetable
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx workbook with an entries sheet"
// @Param mode formData string true "atomic or partial"
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /timetable/entries:importFile [post]
func (h *TimetableHandler) ImportFile(c *gin.Context) {
	school, ok := schoolFromContext(c)
	if !ok {
		return
	}
	tooLarge := appErrors.New("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge,
		fmt.Sprintf("spreadsheet exceeds %d bytes", h.maxFileBytes))
	if c.Request.ContentLength > h.maxFileBytes {
		response.Error(c, tooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileBytes)
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, tooLarge)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart field file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read uploaded file"))
		return
	}
	defer file.Close()

	reqs, err := h.importer.ParseSpreadsheet(file)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.runImport(c, school, c.PostForm("mode"), reqs)
}

func (h *TimetableHandler) runImport(c *gin.Context, school, mode string, reqs []dto.EntryRequest) {
	result, err := h.importer.ImportBatch(c.Request.Context(), school, mode, reqs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{
		"accepted": len(result.Accepted),
		"rejected": len(result.Rejected),
		"skipped":  len(result.Skipped),
	})
}

func queryDate(c *gin.Context, name string) (*models.Date, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a YYYY-MM-DD date", name))
	}
	return &d, nil
}
