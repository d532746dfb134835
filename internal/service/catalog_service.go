package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type catalogRepository interface {
	Load(ctx context.Context, schoolID string) (models.Catalog, error)
	List(ctx context.Context, kind models.CatalogKind, schoolID string, filter models.CatalogFilter, dest interface{}) (int, error)
	Get(ctx context.Context, kind models.CatalogKind, schoolID, id string, dest interface{}) error
	Save(ctx context.Context, kind models.CatalogKind, record interface{}) error
	Delete(ctx context.Context, kind models.CatalogKind, schoolID, id string) error
	SubjectCodeTaken(ctx context.Context, schoolID, code, excludeID string) (bool, error)
}

type referenceCounter interface {
	CountReferences(ctx context.Context, schoolID string, kind models.CatalogKind, id string) (int, error)
}

// reportInvalidator drops cached conflict reports after a write changes them.
type reportInvalidator interface {
	Invalidate(ctx context.Context, schoolID string)
}

// ParseCatalogKind maps a path segment to a catalog collection.
func ParseCatalogKind(raw string) (models.CatalogKind, error) {
	kind := models.CatalogKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case models.CatalogTimeSlots, models.CatalogSubjects, models.CatalogTeachers, models.CatalogRooms, models.CatalogClasses:
		return kind, nil
	}
	return "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown catalog collection %q", raw))
}

// CatalogService manages the reference entities timetable entries point at.
type CatalogService struct {
	repo        catalogRepository
	refs        referenceCounter
	guard       WriteGuard
	invalidator reportInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCatalogService instantiates CatalogService.
func NewCatalogService(repo catalogRepository, refs referenceCounter, guard WriteGuard, invalidator reportInvalidator, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, refs: refs, guard: guard, invalidator: invalidator, validator: validate, logger: logger}
}

// Snapshot loads every catalog collection of a tenant.
func (s *CatalogService) Snapshot(ctx context.Context, schoolID string) (models.Catalog, error) {
	catalog, err := s.repo.Load(ctx, schoolID)
	if err != nil {
		return models.Catalog{}, storageError(err, "failed to load catalog")
	}
	return catalog, nil
}

// List returns one page of a catalog collection.
func (s *CatalogService) List(ctx context.Context, schoolID string, kind models.CatalogKind, query dto.CatalogListQuery) (interface{}, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationError(err, "invalid list query")
	}
	dest, ok := newCatalogSlice(kind)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "unknown catalog collection")
	}
	filter := models.CatalogFilter{Search: strings.TrimSpace(query.Search), Page: query.Page, PageSize: query.Limit}
	total, err := s.repo.List(ctx, kind, schoolID, filter, dest)
	if err != nil {
		return nil, nil, storageError(err, fmt.Sprintf("failed to list %s", kind))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return dest, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a single catalog record.
func (s *CatalogService) Get(ctx context.Context, schoolID string, kind models.CatalogKind, id string) (interface{}, error) {
	record, ok := newCatalogRecord(kind)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown catalog collection")
	}
	if err := s.repo.Get(ctx, kind, schoolID, id, record); err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", singular(kind), id))
		}
		return nil, storageError(err, fmt.Sprintf("failed to load %s", singular(kind)))
	}
	return record, nil
}

// SaveTimeSlot creates a slot, or replaces slot id when id is non-empty.
func (s *CatalogService) SaveTimeSlot(ctx context.Context, schoolID, id string, req dto.TimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid time slot payload")
	}
	slot := &models.TimeSlot{
		SchoolID:    schoolID,
		ID:          strings.TrimSpace(req.ID),
		Label:       strings.TrimSpace(req.Label),
		StartMinute: *req.StartMinute,
		EndMinute:   *req.EndMinute,
	}
	if err := slot.Validate(); err != nil {
		return nil, validationError(err, err.Error())
	}

	// Moving a slot changes which entries overlap, so it is ordered with entry writes.
	unlock, err := s.guard.acquire(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.save(ctx, models.CatalogTimeSlots, id, slot); err != nil {
		return nil, err
	}
	s.invalidate(ctx, schoolID)
	return slot, nil
}

// SaveSubject creates or replaces a subject. Codes are unique per tenant.
func (s *CatalogService) SaveSubject(ctx context.Context, schoolID, id string, req dto.SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid subject payload")
	}
	subject := &models.Subject{
		SchoolID: schoolID,
		ID:       strings.TrimSpace(req.ID),
		Name:     strings.TrimSpace(req.Name),
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		Color:    strings.TrimSpace(req.Color),
	}
	if err := s.save(ctx, models.CatalogSubjects, id, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

// SaveTeacher creates or replaces a teacher.
func (s *CatalogService) SaveTeacher(ctx context.Context, schoolID, id string, req dto.TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid teacher payload")
	}
	subjectIDs := make(models.IDList, 0, len(req.SubjectIDs))
	for _, subjectID := range req.SubjectIDs {
		subjectID = strings.TrimSpace(subjectID)
		if !subjectIDs.Contains(subjectID) {
			subjectIDs = append(subjectIDs, subjectID)
		}
	}
	teacher := &models.Teacher{
		SchoolID:   schoolID,
		ID:         strings.TrimSpace(req.ID),
		Name:       strings.TrimSpace(req.Name),
		SubjectIDs: subjectIDs,
	}
	if err := s.save(ctx, models.CatalogTeachers, id, teacher); err != nil {
		return nil, err
	}
	return teacher, nil
}

// SaveRoom creates or replaces a room.
func (s *CatalogService) SaveRoom(ctx context.Context, schoolID, id string, req dto.RoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid room payload")
	}
	room := &models.Room{
		SchoolID: schoolID,
		ID:       strings.TrimSpace(req.ID),
		Name:     strings.TrimSpace(req.Name),
		Capacity: req.Capacity,
		Kind:     models.RoomKind(req.Kind),
	}
	if err := s.save(ctx, models.CatalogRooms, id, room); err != nil {
		return nil, err
	}
	return room, nil
}

// SaveClass creates or replaces a school class.
func (s *CatalogService) SaveClass(ctx context.Context, schoolID, id string, req dto.SchoolClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid class payload")
	}
	class := &models.SchoolClass{
		SchoolID:     schoolID,
		ID:           strings.TrimSpace(req.ID),
		Name:         strings.TrimSpace(req.Name),
		Grade:        strings.TrimSpace(req.Grade),
		Section:      strings.TrimSpace(req.Section),
		StudentCount: req.StudentCount,
	}
	if err := s.save(ctx, models.CatalogClasses, id, class); err != nil {
		return nil, err
	}
	return class, nil
}

// Delete removes a catalog record that no timetable entry references.
func (s *CatalogService) Delete(ctx context.Context, schoolID string, kind models.CatalogKind, id string) error {
	if _, ok := newCatalogRecord(kind); !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "unknown catalog collection")
	}

	unlock, err := s.guard.acquire(ctx, schoolID)
	if err != nil {
		return err
	}
	defer unlock()

	count, err := s.refs.CountReferences(ctx, schoolID, kind, id)
	if err != nil {
		return storageError(err, "failed to check references")
	}
	if count > 0 {
		return appErrors.WithDetails(appErrors.ErrReferential,
			fmt.Sprintf("%s %s is referenced by %d timetable entries", singular(kind), id, count),
			map[string]interface{}{"kind": kind, "id": id, "references": count})
	}

	if err := s.repo.Delete(ctx, kind, schoolID, id); err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", singular(kind), id))
		}
		return storageError(err, fmt.Sprintf("failed to delete %s", singular(kind)))
	}
	if kind == models.CatalogTimeSlots {
		s.invalidate(ctx, schoolID)
	}
	s.logger.Info("catalog record deleted", zap.String("school_id", schoolID), zap.String("kind", string(kind)), zap.String("id", id))
	return nil
}

// save resolves create versus replace semantics and persists record.
// replaceID is empty for creates.
func (s *CatalogService) save(ctx context.Context, kind models.CatalogKind, replaceID string, record interface{}) error {
	schoolID, id, createdAt := catalogKeys(record)
	if replaceID != "" {
		*id = replaceID
	}

	if *id != "" {
		existing, _ := newCatalogRecord(kind)
		err := s.repo.Get(ctx, kind, schoolID, *id, existing)
		switch {
		case err == nil && replaceID == "":
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s %s already exists", singular(kind), *id))
		case err == nil:
			_, _, previous := catalogKeys(existing)
			*createdAt = *previous
		case isNotFound(err) && replaceID != "":
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", singular(kind), *id))
		case !isNotFound(err):
			return storageError(err, fmt.Sprintf("failed to load %s", singular(kind)))
		}
	}

	if subject, ok := record.(*models.Subject); ok {
		taken, err := s.repo.SubjectCodeTaken(ctx, schoolID, subject.Code, subject.ID)
		if err != nil {
			return storageError(err, "failed to check subject code")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject code %s already in use", subject.Code))
		}
	}

	if err := s.repo.Save(ctx, kind, record); err != nil {
		return storageError(err, fmt.Sprintf("failed to save %s", singular(kind)))
	}
	s.logger.Info("catalog record saved", zap.String("school_id", schoolID), zap.String("kind", string(kind)), zap.String("id", *id))
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, schoolID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, schoolID)
	}
}

func newCatalogRecord(kind models.CatalogKind) (interface{}, bool) {
	switch kind {
	case models.CatalogTimeSlots:
		return &models.TimeSlot{}, true
	case models.CatalogSubjects:
		return &models.Subject{}, true
	case models.CatalogTeachers:
		return &models.Teacher{}, true
	case models.CatalogRooms:
		return &models.Room{}, true
	case models.CatalogClasses:
		return &models.SchoolClass{}, true
	}
	return nil, false
}

func newCatalogSlice(kind models.CatalogKind) (interface{}, bool) {
	switch kind {
	case models.CatalogTimeSlots:
		return &[]models.TimeSlot{}, true
	case models.CatalogSubjects:
		return &[]models.Subject{}, true
	case models.CatalogTeachers:
		return &[]models.Teacher{}, true
	case models.CatalogRooms:
		return &[]models.Room{}, true
	case models.CatalogClasses:
		return &[]models.SchoolClass{}, true
	}
	return nil, false
}

func catalogKeys(record interface{}) (string, *string, *time.Time) {
	switch v := record.(type) {
	case *models.TimeSlot:
		return v.SchoolID, &v.ID, &v.CreatedAt
	case *models.Subject:
		return v.SchoolID, &v.ID, &v.CreatedAt
	case *models.Teacher:
		return v.SchoolID, &v.ID, &v.CreatedAt
	case *models.Room:
		return v.SchoolID, &v.ID, &v.CreatedAt
	case *models.SchoolClass:
		return v.SchoolID, &v.ID, &v.CreatedAt
	}
	panic(fmt.Sprintf("unsupported catalog record %T", record))
}

func singular(kind models.CatalogKind) string {
	switch kind {
	case models.CatalogTimeSlots:
		return "time slot"
	case models.CatalogClasses:
		return "class"
	}
	return strings.TrimSuffix(string(kind), "s")
}
