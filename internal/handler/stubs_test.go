package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const testSchool = "school-1"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func newTestContext(method, target string, body io.Reader) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", SchoolID: testSchool, Role: models.RoleScheduler})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type entryServiceStub struct {
	school     string
	id         string
	req        dto.EntryRequest
	query      dto.EntryListQuery
	from, to   *models.Date
	entry      *models.TimetableEntry
	entries    []models.TimetableEntry
	dates      []models.Date
	err        error
	deleteCall int
}

func (s *entryServiceStub) List(ctx context.Context, schoolID string, query dto.EntryListQuery) ([]models.TimetableEntry, *models.Pagination, error) {
	s.school, s.query = schoolID, query
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.entries, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(s.entries)}, nil
}

func (s *entryServiceStub) Get(ctx context.Context, schoolID, id string) (*models.TimetableEntry, error) {
	s.school, s.id = schoolID, id
	return s.entry, s.err
}

func (s *entryServiceStub) Occurrences(ctx context.Context, schoolID, id string, from, to *models.Date) ([]models.Date, error) {
	s.school, s.id, s.from, s.to = schoolID, id, from, to
	return s.dates, s.err
}

func (s *entryServiceStub) Create(ctx context.Context, schoolID string, req dto.EntryRequest) (*models.TimetableEntry, error) {
	s.school, s.req = schoolID, req
	return s.entry, s.err
}

func (s *entryServiceStub) Replace(ctx context.Context, schoolID, id string, req dto.EntryRequest) (*models.TimetableEntry, error) {
	s.school, s.id, s.req = schoolID, id, req
	return s.entry, s.err
}

func (s *entryServiceStub) Delete(ctx context.Context, schoolID, id string) error {
	s.school, s.id = schoolID, id
	s.deleteCall++
	return s.err
}

type importerStub struct {
	mode     string
	reqs     []dto.EntryRequest
	parsed   []dto.EntryRequest
	result   *models.BatchResult
	parseErr error
	err      error
}

func (s *importerStub) ImportBatch(ctx context.Context, schoolID string, mode string, reqs []dto.EntryRequest) (*models.BatchResult, error) {
	s.mode, s.reqs = mode, reqs
	return s.result, s.err
}

func (s *importerStub) ParseSpreadsheet(r io.Reader) ([]dto.EntryRequest, error) {
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return s.parsed, s.parseErr
}

type conflictServiceStub struct {
	report           *models.ConflictReport
	hit              bool
	conflictID       string
	includeTimeSlots bool
	suggestions      []models.Suggestion
	err              error
}

func (s *conflictServiceStub) Report(ctx context.Context, schoolID string) (*models.ConflictReport, bool, error) {
	return s.report, s.hit, s.err
}

func (s *conflictServiceStub) Suggest(ctx context.Context, schoolID, conflictID string, includeTimeSlots bool) (*models.Conflict, []models.Suggestion, error) {
	s.conflictID, s.includeTimeSlots = conflictID, includeTimeSlots
	if s.err != nil {
		return nil, nil, s.err
	}
	return &models.Conflict{ID: conflictID}, s.suggestions, nil
}

type catalogServiceStub struct {
	calls []string
	id    string
	room  dto.RoomRequest
	err   error
}

func (s *catalogServiceStub) List(ctx context.Context, schoolID string, kind models.CatalogKind, query dto.CatalogListQuery) (interface{}, *models.Pagination, error) {
	s.calls = append(s.calls, "list:"+string(kind))
	return &[]models.Room{{ID: "R1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, s.err
}

func (s *catalogServiceStub) Get(ctx context.Context, schoolID string, kind models.CatalogKind, id string) (interface{}, error) {
	s.calls = append(s.calls, "get:"+string(kind))
	s.id = id
	return &models.Room{ID: id}, s.err
}

func (s *catalogServiceStub) SaveTimeSlot(ctx context.Context, schoolID, id string, req dto.TimeSlotRequest) (*models.TimeSlot, error) {
	s.calls = append(s.calls, "timeslot")
	s.id = id
	return &models.TimeSlot{ID: id}, s.err
}

func (s *catalogServiceStub) SaveSubject(ctx context.Context, schoolID, id string, req dto.SubjectRequest) (*models.Subject, error) {
	s.calls = append(s.calls, "subject")
	s.id = id
	return &models.Subject{ID: id}, s.err
}

func (s *catalogServiceStub) SaveTeacher(ctx context.Context, schoolID, id string, req dto.TeacherRequest) (*models.Teacher, error) {
	s.calls = append(s.calls, "teacher")
	s.id = id
	return &models.Teacher{ID: id}, s.err
}

func (s *catalogServiceStub) SaveRoom(ctx context.Context, schoolID, id string, req dto.RoomRequest) (*models.Room, error) {
	s.calls = append(s.calls, "room")
	s.id, s.room = id, req
	return &models.Room{ID: "R7", Name: req.Name}, s.err
}

func (s *catalogServiceStub) SaveClass(ctx context.Context, schoolID, id string, req dto.SchoolClassRequest) (*models.SchoolClass, error) {
	s.calls = append(s.calls, "class")
	s.id = id
	return &models.SchoolClass{ID: id}, s.err
}

func (s *catalogServiceStub) Delete(ctx context.Context, schoolID string, kind models.CatalogKind, id string) error {
	s.calls = append(s.calls, "delete:"+string(kind))
	s.id = id
	return s.err
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}
