package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// DefaultImportMaxRows bounds a single bulk import.
const DefaultImportMaxRows = 5000

type importRepository interface {
	ListByTenant(ctx context.Context, schoolID string) ([]models.TimetableEntry, error)
	Create(ctx context.Context, entry *models.TimetableEntry) error
	BulkCreate(ctx context.Context, entries []models.TimetableEntry) error
}

// ImportService is the bulk importer. Every candidate is checked against the
// store and against the rest of the batch before anything is written.
type ImportService struct {
	repo        importRepository
	catalog     catalogLoader
	guard       WriteGuard
	invalidator reportInvalidator
	opts        scheduling.Options
	maxRows     int
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewImportService instantiates ImportService.
func NewImportService(repo importRepository, catalog catalogLoader, guard WriteGuard, invalidator reportInvalidator, opts scheduling.Options, maxRows int, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ImportService {
	if maxRows <= 0 {
		maxRows = DefaultImportMaxRows
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		repo:        repo,
		catalog:     catalog,
		guard:       guard,
		invalidator: invalidator,
		opts:        opts,
		maxRows:     maxRows,
		validator:   validate,
		metrics:     metrics,
		logger:      logger,
	}
}

// MaxRows reports the configured batch size limit.
func (s *ImportService) MaxRows() int {
	return s.maxRows
}

// candidate tracks one batch row through the passes.
type candidate struct {
	index int
	entry models.TimetableEntry
	done  bool
}

// ImportBatch runs the bulk importer in the caller-chosen mode. Cancellation is
// checked between candidates; rows not reached are reported in Skipped.
func (s *ImportService) ImportBatch(ctx context.Context, schoolID string, rawMode string, reqs []dto.EntryRequest) (*models.BatchResult, error) {
	mode := models.ImportMode(strings.ToLower(strings.TrimSpace(rawMode)))
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mode must be atomic or partial")
	}
	if len(reqs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entries must not be empty")
	}
	if len(reqs) > s.maxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch of %d entries exceeds the limit of %d", len(reqs), s.maxRows))
	}

	result := &models.BatchResult{
		Mode:     mode,
		Accepted: []models.TimetableEntry{},
		Rejected: []models.RejectedCandidate{},
	}
	cands := make([]*candidate, len(reqs))
	reject := func(c *candidate, reason models.RejectReason, message string, conflicts []models.Conflict) {
		c.done = true
		result.Rejected = append(result.Rejected, models.RejectedCandidate{
			Index:     c.index,
			Candidate: c.entry,
			Reason:    reason,
			Message:   message,
			Conflicts: conflicts,
		})
	}
	cancel := func() (*models.BatchResult, error) {
		result.Cancelled = true
		for _, c := range cands {
			if c != nil && !c.done {
				result.Skipped = append(result.Skipped, c.index)
			}
		}
		s.finish(ctx, schoolID, result)
		return result, nil
	}

	// Structural validation needs no store access.
	seen := make(map[string]int, len(reqs))
	for i, req := range reqs {
		c := &candidate{index: i, entry: req.ToEntry(schoolID)}
		cands[i] = c
		if err := s.validator.Struct(req); err != nil {
			reject(c, models.RejectValidation, err.Error(), nil)
			continue
		}
		if err := c.entry.Validate(); err != nil {
			reject(c, models.RejectValidation, err.Error(), nil)
			continue
		}
		if c.entry.ID == "" {
			c.entry.ID = uuid.NewString()
		}
		if first, dup := seen[c.entry.ID]; dup {
			reject(c, models.RejectValidation, fmt.Sprintf("duplicate id %s, first used by candidate %d", c.entry.ID, first), nil)
			continue
		}
		seen[c.entry.ID] = i
	}
	if ctx.Err() != nil {
		return cancel()
	}

	unlock, err := s.guard.acquire(ctx, schoolID)
	if err != nil {
		if ctx.Err() != nil {
			return cancel()
		}
		return nil, err
	}
	defer unlock()

	catalog, existing, err := s.snapshot(ctx, schoolID)
	if err != nil {
		if ctx.Err() != nil {
			return cancel()
		}
		return nil, err
	}

	stored := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		stored[e.ID] = struct{}{}
	}
	refs := newCatalogIndex(catalog)
	var checked []*candidate
	for _, c := range cands {
		if ctx.Err() != nil {
			return cancel()
		}
		if c.done {
			continue
		}
		if _, ok := stored[c.entry.ID]; ok {
			reject(c, models.RejectValidation, fmt.Sprintf("timetable entry %s already exists", c.entry.ID), nil)
			continue
		}
		if missing := refs.missing(c.entry); len(missing) > 0 {
			reject(c, models.RejectReferential, referentialError(missing).Message, nil)
			continue
		}
		checked = append(checked, c)
	}

	conflicts, err := s.detect(ctx, catalog, existing, checked)
	if err != nil {
		if ctx.Err() != nil {
			return cancel()
		}
		return nil, detectionError(err)
	}
	var accepted []*candidate
	for i, c := range checked {
		if len(conflicts[i]) > 0 {
			reject(c, models.RejectConflict, fmt.Sprintf("conflicts with %d booking(s)", len(conflicts[i])), conflicts[i])
			continue
		}
		accepted = append(accepted, c)
	}

	if mode == models.ImportAtomic {
		if len(result.Rejected) > 0 {
			for _, c := range accepted {
				reject(c, models.RejectAtomicRollback, "batch rejected because another candidate failed", nil)
			}
			s.finish(ctx, schoolID, result)
			return result, nil
		}
		if ctx.Err() != nil {
			return cancel()
		}
		batch := make([]models.TimetableEntry, len(accepted))
		for i, c := range accepted {
			batch[i] = c.entry
		}
		if err := s.repo.BulkCreate(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return cancel()
			}
			return nil, storageError(err, "failed to commit bulk import")
		}
		for _, c := range accepted {
			c.done = true
		}
		result.Accepted = append(result.Accepted, batch...)
		s.finish(ctx, schoolID, result)
		return result, nil
	}

	for _, c := range accepted {
		if ctx.Err() != nil {
			return cancel()
		}
		entry := c.entry
		if err := s.repo.Create(ctx, &entry); err != nil {
			if ctx.Err() != nil {
				return cancel()
			}
			reject(c, models.RejectStorage, err.Error(), nil)
			continue
		}
		c.done = true
		result.Accepted = append(result.Accepted, entry)
	}
	s.finish(ctx, schoolID, result)
	return result, nil
}

// detect returns, per candidate, its conflicts with the store followed by its
// conflicts with the other candidates.
func (s *ImportService) detect(ctx context.Context, catalog models.Catalog, existing []models.TimetableEntry, checked []*candidate) ([][]models.Conflict, error) {
	entries := make([]models.TimetableEntry, len(checked))
	for i, c := range checked {
		entries[i] = c.entry
	}
	detector := scheduling.NewDetector(catalog.Slots(), s.opts)

	start := time.Now()
	againstStore, err := detector.DetectMany(ctx, entries, scheduling.NewIndex(existing))
	if err != nil {
		return nil, err
	}
	againstBatch, err := detector.DetectMany(ctx, entries, scheduling.NewIndex(entries))
	if err != nil {
		return nil, err
	}

	out := make([][]models.Conflict, len(entries))
	var all []models.Conflict
	for i := range entries {
		out[i] = append(againstStore[i], againstBatch[i]...)
		all = append(all, out[i]...)
	}
	s.metrics.ObserveDetection("import", time.Since(start), all)
	return out, nil
}

func (s *ImportService) snapshot(ctx context.Context, schoolID string) (models.Catalog, []models.TimetableEntry, error) {
	var (
		catalog  models.Catalog
		existing []models.TimetableEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = s.catalog.Load(gctx, schoolID)
		return err
	})
	g.Go(func() error {
		var err error
		existing, err = s.repo.ListByTenant(gctx, schoolID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Catalog{}, nil, storageError(err, "failed to load timetable snapshot")
	}
	return catalog, existing, nil
}

func (s *ImportService) finish(ctx context.Context, schoolID string, result *models.BatchResult) {
	s.metrics.RecordImport(result)
	if len(result.Accepted) > 0 && s.invalidator != nil {
		s.invalidator.Invalidate(context.WithoutCancel(ctx), schoolID)
	}
	s.logger.Info("bulk import finished",
		zap.String("school_id", schoolID),
		zap.String("mode", string(result.Mode)),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Bool("cancelled", result.Cancelled))
}
