package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

const (
	conflictCachePrefix = "timetable:conflicts:"
	// WarmJobType identifies report warm-up jobs on the background queue.
	WarmJobType = "conflicts.warm"
	// versionTTL must outlive any report TTL so an expired version never resurrects a stale report.
	versionTTL = 7 * 24 * time.Hour
)

type catalogLoader interface {
	Load(ctx context.Context, schoolID string) (models.Catalog, error)
}

type tenantEntryLister interface {
	ListByTenant(ctx context.Context, schoolID string) ([]models.TimetableEntry, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ConflictService computes tenant conflict reports and fix suggestions.
type ConflictService struct {
	catalog  catalogLoader
	entries  tenantEntryLister
	cache    *CacheService
	cacheTTL time.Duration
	queue    jobEnqueuer
	opts     scheduling.Options
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewConflictService instantiates ConflictService. cache and metrics may be nil.
func NewConflictService(catalog catalogLoader, entries tenantEntryLister, cache *CacheService, cacheTTL time.Duration, opts scheduling.Options, metrics *MetricsService, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		catalog:  catalog,
		entries:  entries,
		cache:    cache,
		cacheTTL: cacheTTL,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetWarmQueue enables asynchronous report recomputation after invalidation.
func (s *ConflictService) SetWarmQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Report returns every current conflict of a tenant. The boolean reports a cache hit.
func (s *ConflictService) Report(ctx context.Context, schoolID string) (*models.ConflictReport, bool, error) {
	version := s.version(ctx, schoolID)
	key := reportKey(schoolID, version)

	var cached models.ConflictReport
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	catalog, entries, err := s.snapshot(ctx, schoolID)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	detector := scheduling.NewDetector(catalog.Slots(), s.opts)
	conflicts, err := detector.Report(ctx, entries)
	s.metrics.ObserveDetection("report", time.Since(start), conflicts)
	if err != nil {
		return nil, false, detectionError(err)
	}
	if conflicts == nil {
		conflicts = []models.Conflict{}
	}

	report := &models.ConflictReport{
		TenantID:    schoolID,
		EntryCount:  len(entries),
		Conflicts:   conflicts,
		GeneratedAt: time.Now().UTC(),
	}
	_ = s.cache.Set(ctx, key, report, s.cacheTTL)
	return report, false, nil
}

// Suggest returns ranked substitutions for the candidate side of a current conflict.
func (s *ConflictService) Suggest(ctx context.Context, schoolID, conflictID string, includeTimeSlots bool) (*models.Conflict, []models.Suggestion, error) {
	report, _, err := s.Report(ctx, schoolID)
	if err != nil {
		return nil, nil, err
	}
	conflict, ok := report.Find(conflictID)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("conflict %s not found", conflictID))
	}

	catalog, entries, err := s.snapshot(ctx, schoolID)
	if err != nil {
		return nil, nil, err
	}

	var candidate *models.TimetableEntry
	existing := make([]models.TimetableEntry, 0, len(entries))
	for i := range entries {
		if entries[i].ID == conflict.CandidateID {
			candidate = &entries[i]
			continue
		}
		existing = append(existing, entries[i])
	}
	if candidate == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("conflict %s not found", conflictID))
	}

	start := time.Now()
	suggestions, err := scheduling.NewAdvisor(s.opts).SuggestFixes(scheduling.SuggestRequest{
		Conflict:         conflict,
		Candidate:        *candidate,
		Existing:         existing,
		Catalog:          catalog,
		IncludeTimeSlots: includeTimeSlots,
	})
	s.metrics.ObserveDetection("suggest", time.Since(start), nil)
	if err != nil {
		return nil, nil, detectionError(err)
	}
	return &conflict, suggestions, nil
}

// Invalidate retires the tenant's cached report and schedules a warm-up when a queue is set.
func (s *ConflictService) Invalidate(ctx context.Context, schoolID string) {
	if s.cache.Enabled() {
		current := reportKey(schoolID, s.version(ctx, schoolID))
		if err := s.cache.Set(ctx, versionKey(schoolID), uuid.NewString(), versionTTL); err != nil {
			s.logger.Warn("failed to bump conflict report version", zap.String("school_id", schoolID), zap.Error(err))
			// The old version stays current, so its report must go.
			if err := s.cache.Delete(ctx, current); err != nil {
				s.logger.Error("stale conflict report left in cache", zap.String("school_id", schoolID), zap.Error(err))
			}
		}
	}
	if s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:       uuid.NewString(),
		Key:      "warm:" + schoolID,
		Type:     WarmJobType,
		Payload:  schoolID,
		Enqueued: time.Now(),
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue conflict warm-up", zap.String("school_id", schoolID), zap.Error(err))
	}
}

// Warm is the queue handler recomputing a tenant report into the cache.
func (s *ConflictService) Warm(ctx context.Context, job jobs.Job) error {
	schoolID, ok := job.Payload.(string)
	if !ok || schoolID == "" {
		return fmt.Errorf("warm job %s: missing school id", job.ID)
	}
	report, hit, err := s.Report(ctx, schoolID)
	if err != nil {
		return err
	}
	if !hit {
		s.logger.Debug("conflict report warmed",
			zap.String("school_id", schoolID),
			zap.Int("entries", report.EntryCount),
			zap.Int("conflicts", len(report.Conflicts)))
	}
	return nil
}

func (s *ConflictService) version(ctx context.Context, schoolID string) string {
	var version string
	if hit, _ := s.cache.Get(ctx, versionKey(schoolID), &version); !hit || version == "" {
		return "0"
	}
	return version
}

func (s *ConflictService) snapshot(ctx context.Context, schoolID string) (models.Catalog, []models.TimetableEntry, error) {
	var (
		catalog models.Catalog
		entries []models.TimetableEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = s.catalog.Load(gctx, schoolID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.entries.ListByTenant(gctx, schoolID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Catalog{}, nil, storageError(err, "failed to load timetable snapshot")
	}
	return catalog, entries, nil
}

func detectionError(err error) *appErrors.Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrCanceled.Code, appErrors.ErrCanceled.Status, appErrors.ErrCanceled.Message)
	case errors.Is(err, scheduling.ErrUnknownTimeSlot):
		return appErrors.Wrap(err, appErrors.ErrReferential.Code, appErrors.ErrReferential.Status, err.Error())
	case errors.Is(err, scheduling.ErrInvalidEntry):
		return validationError(err, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "conflict detection failed")
}

func versionKey(schoolID string) string {
	return conflictCachePrefix + schoolID + ":version"
}

func reportKey(schoolID, version string) string {
	return conflictCachePrefix + schoolID + ":report:" + version
}
