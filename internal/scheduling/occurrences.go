// Package scheduling holds the pure timetable engine: occurrence expansion,
// resource buckets, conflict detection and fix suggestions. Nothing here does I/O.
package scheduling

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// DefaultHorizon caps enumeration when a query has no window end.
const DefaultHorizon = 730 * 24 * time.Hour

// ErrInvalidEntry is returned for entries that break a structural invariant.
var ErrInvalidEntry = models.ErrInvalidEntry

// Resolver expands entries into concrete dates.
type Resolver struct {
	horizonDays int
}

// NewResolver builds a resolver capping open-ended queries at horizon.
func NewResolver(horizon time.Duration) Resolver {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return Resolver{horizonDays: int(horizon / (24 * time.Hour))}
}

// HorizonDays reports the open-query cap in days.
func (r Resolver) HorizonDays() int {
	if r.horizonDays <= 0 {
		return int(DefaultHorizon / (24 * time.Hour))
	}
	return r.horizonDays
}

// Occurrences uses the default horizon.
func Occurrences(entry models.TimetableEntry, windowStart models.Date, windowEnd *models.Date) ([]models.Date, error) {
	return Resolver{}.Occurrences(entry, windowStart, windowEnd)
}

// Occurrences returns the ascending dates on which entry is active inside
// [windowStart, windowEnd]. A zero windowStart means the entry's own start; a nil
// windowEnd is capped at HorizonDays past the effective start. Invalid entries
// yield an error, never an empty result.
func (r Resolver) Occurrences(entry models.TimetableEntry, windowStart models.Date, windowEnd *models.Date) ([]models.Date, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	lo := entry.StartDate
	if !windowStart.IsZero() {
		lo = models.MaxDate(lo, windowStart)
	}

	var hi models.Date
	if windowEnd != nil {
		hi = *windowEnd
	} else {
		hi = lo.AddDays(r.HorizonDays())
	}

	if entry.Recurrence == models.RecurrenceSingle {
		if entry.StartDate.Before(lo) || entry.StartDate.After(hi) {
			return []models.Date{}, nil
		}
		return []models.Date{entry.StartDate}, nil
	}

	if entry.EndDate != nil {
		hi = models.MinDate(hi, *entry.EndDate)
	}
	if hi.Before(lo) {
		return []models.Date{}, nil
	}

	offset := (int(entry.Weekday()) - int(lo.Weekday()) + 7) % 7
	first := lo.AddDays(offset)
	if first.After(hi) {
		return []models.Date{}, nil
	}

	out := make([]models.Date, 0, first.DaysUntil(hi)/7+1)
	for d := first; !d.After(hi); d = d.AddDays(7) {
		out = append(out, d)
	}
	return out, nil
}

// intersectDates merges two ascending date lists.
func intersectDates(a, b []models.Date) []models.Date {
	var out []models.Date
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Equal(b[j]):
			out = append(out, a[i])
			i++
			j++
		case a[i].Before(b[j]):
			i++
		default:
			j++
		}
	}
	return out
}
