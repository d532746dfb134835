package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const (
	// DefaultComparisonWindow bounds how far ahead two entries are compared.
	DefaultComparisonWindow = 365 * 24 * time.Hour
	// DefaultParallelThreshold is the candidate count above which scans fan out.
	DefaultParallelThreshold = 256
	defaultWorkers           = 4
)

// ErrUnknownTimeSlot is returned when an entry names a slot missing from the catalog.
var ErrUnknownTimeSlot = errors.New("unknown time slot")

var conflictNamespace = uuid.MustParse("6f1c2b0e-8a51-4c57-9d8e-5f0f3c2d7a10")

// Options tunes the detector. Zero values fall back to the package defaults.
type Options struct {
	Horizon           time.Duration
	ComparisonWindow  time.Duration
	Workers           int
	ParallelThreshold int
}

// Detector finds teacher, room and class double-bookings. It is safe for concurrent use.
type Detector struct {
	slots      map[string]models.TimeSlot
	resolver   Resolver
	windowDays int
	workers    int
	threshold  int
}

// NewDetector builds a detector over one tenant's time slots.
func NewDetector(slots map[string]models.TimeSlot, opts Options) *Detector {
	if opts.ComparisonWindow <= 0 {
		opts.ComparisonWindow = DefaultComparisonWindow
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.ParallelThreshold <= 0 {
		opts.ParallelThreshold = DefaultParallelThreshold
	}
	if slots == nil {
		slots = map[string]models.TimeSlot{}
	}
	return &Detector{
		slots:      slots,
		resolver:   NewResolver(opts.Horizon),
		windowDays: int(opts.ComparisonWindow / (24 * time.Hour)),
		workers:    opts.Workers,
		threshold:  opts.ParallelThreshold,
	}
}

// ConflictID derives a stable id for the (kind, candidate, conflicting) triple.
func ConflictID(kind models.ConflictKind, candidateID, conflictingID string) string {
	return uuid.NewSHA1(conflictNamespace, []byte(string(kind)+"|"+candidateID+"|"+conflictingID)).String()
}

// Detect returns every conflict between candidate and existing. An entry with
// the candidate's id is its previous version and is skipped.
func (d *Detector) Detect(candidate models.TimetableEntry, existing []models.TimetableEntry) ([]models.Conflict, error) {
	return d.DetectIndexed(candidate, NewIndex(existing))
}

// DetectIndexed is Detect against a prebuilt bucket index.
func (d *Detector) DetectIndexed(candidate models.TimetableEntry, ix *Index) ([]models.Conflict, error) {
	conflicts, err := d.scan(candidate, ix, nil)
	if err != nil {
		return nil, err
	}
	sortConflicts(conflicts)
	return conflicts, nil
}

// DetectMany checks every candidate against ix, fanning out across workers once
// the batch is large. Result i belongs to candidates[i].
func (d *Detector) DetectMany(ctx context.Context, candidates []models.TimetableEntry, ix *Index) ([][]models.Conflict, error) {
	results := make([][]models.Conflict, len(candidates))
	err := d.fanOut(ctx, len(candidates), func(i int) error {
		conflicts, err := d.DetectIndexed(candidates[i], ix)
		if err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
		results[i] = conflicts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Report lists every conflict among entries exactly once per pair and kind. The
// later-created entry of a pair is the candidate.
func (d *Detector) Report(ctx context.Context, entries []models.TimetableEntry) ([]models.Conflict, error) {
	ordered := make([]models.TimetableEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	ix := NewIndex(ordered)
	perEntry := make([][]models.Conflict, len(ordered))
	err := d.fanOut(ctx, len(ordered), func(i int) error {
		conflicts, err := d.scan(ordered[i], ix, func(pos int) bool { return pos >= i })
		if err != nil {
			return err
		}
		perEntry[i] = conflicts
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := []models.Conflict{}
	for _, conflicts := range perEntry {
		out = append(out, conflicts...)
	}
	sortConflicts(out)
	return out, nil
}

func (d *Detector) fanOut(ctx context.Context, n int, fn func(i int) error) error {
	if n < d.threshold || d.workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Detector) scan(candidate models.TimetableEntry, ix *Index, skip func(pos int) bool) ([]models.Conflict, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	slot, ok := d.slots[candidate.TimeSlotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimeSlot, candidate.TimeSlotID)
	}

	conflicts := []models.Conflict{}
	for _, pos := range ix.Candidates(candidate) {
		if skip != nil && skip(pos) {
			continue
		}
		other := ix.Entry(pos)
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}
		otherSlot, ok := d.slots[other.TimeSlotID]
		if !ok {
			return nil, fmt.Errorf("%w: %s on entry %s", ErrUnknownTimeSlot, other.TimeSlotID, other.ID)
		}
		if !slot.Overlaps(otherSlot) {
			continue
		}

		kinds := sharedResources(candidate, other)
		if len(kinds) == 0 {
			continue
		}

		dates, err := d.commonDates(candidate, other)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			continue
		}

		for _, kind := range kinds {
			conflicts = append(conflicts, models.Conflict{
				ID:               ConflictID(kind, candidate.ID, other.ID),
				Kind:             kind,
				CandidateID:      candidate.ID,
				ConflictingID:    other.ID,
				ResourceID:       resourceOf(candidate, kind),
				DayOfWeek:        candidate.DayOfWeek,
				ConflictingDates: dates,
			})
		}
	}
	return conflicts, nil
}

// commonDates intersects both occurrence sets from the later start date up to
// the comparison window or the earlier bounded end, whichever comes first.
func (d *Detector) commonDates(a, b models.TimetableEntry) ([]models.Date, error) {
	start := models.MaxDate(a.StartDate, b.StartDate)
	end := start.AddDays(d.windowDays)
	if a.EndDate != nil {
		end = models.MinDate(end, *a.EndDate)
	}
	if b.EndDate != nil {
		end = models.MinDate(end, *b.EndDate)
	}
	if end.Before(start) {
		return nil, nil
	}

	left, err := d.resolver.Occurrences(a, start, &end)
	if err != nil {
		return nil, err
	}
	right, err := d.resolver.Occurrences(b, start, &end)
	if err != nil {
		return nil, err
	}
	return intersectDates(left, right), nil
}

func sharedResources(a, b models.TimetableEntry) []models.ConflictKind {
	var kinds []models.ConflictKind
	if a.TeacherID == b.TeacherID {
		kinds = append(kinds, models.ConflictTeacher)
	}
	if a.RoomID == b.RoomID {
		kinds = append(kinds, models.ConflictRoom)
	}
	if a.ClassID == b.ClassID {
		kinds = append(kinds, models.ConflictClass)
	}
	return kinds
}

func resourceOf(e models.TimetableEntry, kind models.ConflictKind) string {
	switch kind {
	case models.ConflictTeacher:
		return e.TeacherID
	case models.ConflictRoom:
		return e.RoomID
	default:
		return e.ClassID
	}
}

var kindOrder = map[models.ConflictKind]int{
	models.ConflictTeacher: 0,
	models.ConflictRoom:    1,
	models.ConflictClass:   2,
}

func sortConflicts(conflicts []models.Conflict) {
	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.CandidateID != b.CandidateID {
			return a.CandidateID < b.CandidateID
		}
		if a.ConflictingID != b.ConflictingID {
			return a.ConflictingID < b.ConflictingID
		}
		return kindOrder[a.Kind] < kindOrder[b.Kind]
	})
}
