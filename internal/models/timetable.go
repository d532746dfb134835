package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidEntry marks a TimetableEntry that violates a structural invariant.
var ErrInvalidEntry = errors.New("invalid timetable entry")

// RecurrenceMode is the closed set of ways an entry repeats.
type RecurrenceMode string

const (
	RecurrenceSingle RecurrenceMode = "single"
	RecurrenceWeekly RecurrenceMode = "weekly"
)

// Valid reports whether m is a known recurrence mode.
func (m RecurrenceMode) Valid() bool {
	return m == RecurrenceSingle || m == RecurrenceWeekly
}

// TimetableEntry places a class, subject, teacher and room into a time slot on a weekday.
type TimetableEntry struct {
	SchoolID   string         `db:"school_id" json:"tenantId"`
	ID         string         `db:"id" json:"id"`
	ClassID    string         `db:"class_id" json:"classId"`
	SubjectID  string         `db:"subject_id" json:"subjectId"`
	TeacherID  string         `db:"teacher_id" json:"teacherId"`
	RoomID     string         `db:"room_id" json:"roomId"`
	DayOfWeek  int            `db:"day_of_week" json:"dayOfWeek"`
	TimeSlotID string         `db:"time_slot_id" json:"timeSlotId"`
	Recurrence RecurrenceMode `db:"recurrence" json:"recurrence"`
	StartDate  Date           `db:"start_date" json:"startDate"`
	EndDate    *Date          `db:"end_date" json:"endDate,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// Weekday returns DayOfWeek as a time.Weekday (0 = Sunday).
func (e TimetableEntry) Weekday() time.Weekday {
	return time.Weekday(e.DayOfWeek)
}

// Validate checks every invariant that can be verified without the catalog.
func (e TimetableEntry) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"classId", e.ClassID},
		{"subjectId", e.SubjectID},
		{"teacherId", e.TeacherID},
		{"roomId", e.RoomID},
		{"timeSlotId", e.TimeSlotID},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidEntry, strings.Join(missing, ", "))
	}
	if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
		return fmt.Errorf("%w: dayOfWeek %d outside 0-6", ErrInvalidEntry, e.DayOfWeek)
	}
	if !e.Recurrence.Valid() {
		return fmt.Errorf("%w: recurrence %q must be single or weekly", ErrInvalidEntry, e.Recurrence)
	}
	if e.StartDate.IsZero() {
		return fmt.Errorf("%w: startDate is required", ErrInvalidEntry)
	}

	switch e.Recurrence {
	case RecurrenceSingle:
		if e.EndDate != nil {
			return fmt.Errorf("%w: endDate is only allowed on weekly entries", ErrInvalidEntry)
		}
		if e.StartDate.Weekday() != e.Weekday() {
			return fmt.Errorf("%w: startDate %s is a %s but dayOfWeek is %s",
				ErrInvalidEntry, e.StartDate, e.StartDate.Weekday(), e.Weekday())
		}
	case RecurrenceWeekly:
		if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
			return fmt.Errorf("%w: endDate %s is before startDate %s", ErrInvalidEntry, e.EndDate, e.StartDate)
		}
	}
	return nil
}

// ConflictKind names the resource two entries double-book.
type ConflictKind string

const (
	ConflictTeacher ConflictKind = "teacher"
	ConflictRoom    ConflictKind = "room"
	ConflictClass   ConflictKind = "class"
)

// Conflict is a derived clash between two entries on one resource. It is never persisted.
type Conflict struct {
	ID               string       `json:"id"`
	Kind             ConflictKind `json:"kind"`
	CandidateID      string       `json:"candidateId"`
	ConflictingID    string       `json:"conflictingId"`
	ResourceID       string       `json:"resourceId"`
	DayOfWeek        int          `json:"dayOfWeek"`
	ConflictingDates []Date       `json:"conflictingDates"`
}

// EarliestDate returns the first colliding date.
func (c Conflict) EarliestDate() Date {
	if len(c.ConflictingDates) == 0 {
		return Date{}
	}
	return c.ConflictingDates[0]
}

// ConflictReport is every current conflict of one tenant.
type ConflictReport struct {
	TenantID    string     `json:"tenantId"`
	EntryCount  int        `json:"entryCount"`
	Conflicts   []Conflict `json:"conflicts"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// Find returns the conflict with id, if present.
func (r ConflictReport) Find(id string) (Conflict, bool) {
	for _, c := range r.Conflicts {
		if c.ID == id {
			return c, true
		}
	}
	return Conflict{}, false
}

// SuggestionType is the substitution a Suggestion proposes.
type SuggestionType string

const (
	SuggestTimeSlot SuggestionType = "time_slot"
	SuggestRoom     SuggestionType = "room"
	SuggestTeacher  SuggestionType = "teacher"
)

// Suggestion is one verified conflict-free substitution for the candidate entry.
type Suggestion struct {
	Type             SuggestionType `json:"type"`
	TimeSlotID       string         `json:"timeSlotId,omitempty"`
	RoomID           string         `json:"roomId,omitempty"`
	TeacherID        string         `json:"teacherId,omitempty"`
	SameRoomKind     bool           `json:"sameRoomKind"`
	MinuteDistance   int            `json:"minuteDistance"`
	ReplacementEntry TimetableEntry `json:"replacementEntry"`
}

// ImportMode selects all-or-nothing or best-effort bulk commits.
type ImportMode string

const (
	ImportAtomic  ImportMode = "atomic"
	ImportPartial ImportMode = "partial"
)

// Valid reports whether m is a known import mode.
func (m ImportMode) Valid() bool {
	return m == ImportAtomic || m == ImportPartial
}

// RejectReason classifies why a bulk candidate was not committed.
type RejectReason string

const (
	RejectValidation     RejectReason = "validation"
	RejectReferential    RejectReason = "referential"
	RejectConflict       RejectReason = "conflict"
	RejectAtomicRollback RejectReason = "atomic_rollback"
	RejectStorage        RejectReason = "storage"
)

// RejectedCandidate pairs a refused candidate with the reason and any conflicts.
type RejectedCandidate struct {
	Index     int            `json:"index"`
	Candidate TimetableEntry `json:"candidate"`
	Reason    RejectReason   `json:"reason"`
	Message   string         `json:"message,omitempty"`
	Conflicts []Conflict     `json:"conflicts,omitempty"`
}

// BatchResult is the outcome of a bulk import.
type BatchResult struct {
	Mode      ImportMode          `json:"mode"`
	Accepted  []TimetableEntry    `json:"accepted"`
	Rejected  []RejectedCandidate `json:"rejected"`
	Skipped   []int               `json:"skipped,omitempty"`
	Cancelled bool                `json:"cancelled"`
}

// EntryFilter narrows entry listings. Zero values match everything.
type EntryFilter struct {
	ClassID   string
	TeacherID string
	RoomID    string
	DayOfWeek *int
	Page      int
	PageSize  int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}
