package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type entryRepository interface {
	List(ctx context.Context, schoolID string, filter models.EntryFilter) ([]models.TimetableEntry, int, error)
	ListByDay(ctx context.Context, schoolID string, day int, teacherID, roomID, classID string) ([]models.TimetableEntry, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.TimetableEntry, error)
	Create(ctx context.Context, entry *models.TimetableEntry) error
	Update(ctx context.Context, entry *models.TimetableEntry) error
	Delete(ctx context.Context, schoolID, id string) error
}

// TimetableService runs the check-then-write sequence for single entries.
type TimetableService struct {
	repo        entryRepository
	catalog     catalogLoader
	guard       WriteGuard
	invalidator reportInvalidator
	opts        scheduling.Options
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewTimetableService instantiates TimetableService.
func NewTimetableService(repo entryRepository, catalog catalogLoader, guard WriteGuard, invalidator reportInvalidator, opts scheduling.Options, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		repo:        repo,
		catalog:     catalog,
		guard:       guard,
		invalidator: invalidator,
		opts:        opts,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
	}
}

// List returns entries with pagination metadata.
func (s *TimetableService) List(ctx context.Context, schoolID string, query dto.EntryListQuery) ([]models.TimetableEntry, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationError(err, "invalid entry filter")
	}
	filter := query.ToFilter()
	entries, total, err := s.repo.List(ctx, schoolID, filter)
	if err != nil {
		return nil, nil, storageError(err, "failed to list timetable entries")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single entry.
func (s *TimetableService) Get(ctx context.Context, schoolID, id string) (*models.TimetableEntry, error) {
	entry, err := s.repo.FindByID(ctx, schoolID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("timetable entry %s not found", id))
		}
		return nil, storageError(err, "failed to load timetable entry")
	}
	return entry, nil
}

// Occurrences expands an entry over [from, to]. A nil from starts at the
// entry's own start date; a nil to is capped at the occurrence horizon.
func (s *TimetableService) Occurrences(ctx context.Context, schoolID, id string, from, to *models.Date) ([]models.Date, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	entry, err := s.Get(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	var windowStart models.Date
	if from != nil {
		windowStart = *from
	}
	dates, err := scheduling.NewResolver(s.opts.Horizon).Occurrences(*entry, windowStart, to)
	if err != nil {
		return nil, validationError(err, err.Error())
	}
	return dates, nil
}

// Create validates, checks references and conflicts, then stores a new entry.
func (s *TimetableService) Create(ctx context.Context, schoolID string, req dto.EntryRequest) (*models.TimetableEntry, error) {
	entry, err := s.prepare(schoolID, req)
	if err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	unlock, err := s.guard.acquire(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.repo.FindByID(ctx, schoolID, entry.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("timetable entry %s already exists", entry.ID))
	} else if !isNotFound(err) {
		return nil, storageError(err, "failed to load timetable entry")
	}

	if err := s.check(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		return nil, storageError(err, "failed to create timetable entry")
	}

	s.invalidate(ctx, schoolID)
	s.logger.Info("timetable entry created", zap.String("school_id", schoolID), zap.String("entry_id", entry.ID))
	return &entry, nil
}

// Replace overwrites an existing entry under the same conflict contract as Create.
func (s *TimetableService) Replace(ctx context.Context, schoolID, id string, req dto.EntryRequest) (*models.TimetableEntry, error) {
	entry, err := s.prepare(schoolID, req)
	if err != nil {
		return nil, err
	}
	if entry.ID != "" && entry.ID != id {
		return nil, appErrors.Clone(appErrors.ErrValidation, "body id does not match path id")
	}
	entry.ID = id

	unlock, err := s.guard.acquire(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.repo.FindByID(ctx, schoolID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("timetable entry %s not found", id))
		}
		return nil, storageError(err, "failed to load timetable entry")
	}
	entry.CreatedAt = existing.CreatedAt

	if err := s.check(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &entry); err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("timetable entry %s not found", id))
		}
		return nil, storageError(err, "failed to replace timetable entry")
	}

	s.invalidate(ctx, schoolID)
	s.logger.Info("timetable entry replaced", zap.String("school_id", schoolID), zap.String("entry_id", id))
	return &entry, nil
}

// Delete removes an entry.
func (s *TimetableService) Delete(ctx context.Context, schoolID, id string) error {
	unlock, err := s.guard.acquire(ctx, schoolID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.Delete(ctx, schoolID, id); err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("timetable entry %s not found", id))
		}
		return storageError(err, "failed to delete timetable entry")
	}

	s.invalidate(ctx, schoolID)
	s.logger.Info("timetable entry deleted", zap.String("school_id", schoolID), zap.String("entry_id", id))
	return nil
}

// prepare turns a request into an entry that satisfies every structural invariant.
func (s *TimetableService) prepare(schoolID string, req dto.EntryRequest) (models.TimetableEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordWriteRejection(appErrors.ErrValidation.Code)
		return models.TimetableEntry{}, validationError(err, "invalid timetable entry payload")
	}
	entry := req.ToEntry(schoolID)
	if err := entry.Validate(); err != nil {
		s.metrics.RecordWriteRejection(appErrors.ErrValidation.Code)
		return models.TimetableEntry{}, validationError(err, err.Error())
	}
	return entry, nil
}

// check runs the referential and conflict checks. Callers hold the tenant lock.
func (s *TimetableService) check(ctx context.Context, entry models.TimetableEntry) error {
	catalog, err := s.catalog.Load(ctx, entry.SchoolID)
	if err != nil {
		return storageError(err, "failed to load catalog")
	}
	if missing := newCatalogIndex(catalog).missing(entry); len(missing) > 0 {
		s.metrics.RecordWriteRejection(appErrors.ErrReferential.Code)
		return referentialError(missing)
	}

	neighbours, err := s.repo.ListByDay(ctx, entry.SchoolID, entry.DayOfWeek, entry.TeacherID, entry.RoomID, entry.ClassID)
	if err != nil {
		return storageError(err, "failed to load same-day entries")
	}

	start := time.Now()
	conflicts, err := scheduling.NewDetector(catalog.Slots(), s.opts).Detect(entry, neighbours)
	s.metrics.ObserveDetection("write", time.Since(start), conflicts)
	if err != nil {
		return detectionError(err)
	}
	if len(conflicts) > 0 {
		s.metrics.RecordWriteRejection(appErrors.ErrConflict.Code)
		return appErrors.WithDetails(appErrors.ErrConflict,
			fmt.Sprintf("timetable entry conflicts with %d existing booking(s)", len(conflicts)),
			map[string]interface{}{"conflicts": conflicts})
	}
	return nil
}

func (s *TimetableService) invalidate(ctx context.Context, schoolID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, schoolID)
	}
}
