package dto

import (
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// EntryRequest is the body for creating or replacing a timetable entry and one
// element of a bulk import.
type EntryRequest struct {
	ID         string       `json:"id,omitempty"`
	ClassID    string       `json:"classId" validate:"required"`
	SubjectID  string       `json:"subjectId" validate:"required"`
	TeacherID  string       `json:"teacherId" validate:"required"`
	RoomID     string       `json:"roomId" validate:"required"`
	DayOfWeek  *int         `json:"dayOfWeek" validate:"required,min=0,max=6"`
	TimeSlotID string       `json:"timeSlotId" validate:"required"`
	Recurrence string       `json:"recurrence" validate:"required,oneof=single weekly"`
	StartDate  models.Date  `json:"startDate"`
	EndDate    *models.Date `json:"endDate,omitempty"`
}

// ToEntry builds the entry value for a tenant. Structural invariants are checked by the caller.
func (r EntryRequest) ToEntry(schoolID string) models.TimetableEntry {
	day := -1
	if r.DayOfWeek != nil {
		day = *r.DayOfWeek
	}
	return models.TimetableEntry{
		SchoolID:   schoolID,
		ID:         strings.TrimSpace(r.ID),
		ClassID:    strings.TrimSpace(r.ClassID),
		SubjectID:  strings.TrimSpace(r.SubjectID),
		TeacherID:  strings.TrimSpace(r.TeacherID),
		RoomID:     strings.TrimSpace(r.RoomID),
		DayOfWeek:  day,
		TimeSlotID: strings.TrimSpace(r.TimeSlotID),
		Recurrence: models.RecurrenceMode(strings.ToLower(strings.TrimSpace(r.Recurrence))),
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}
}

// BulkImportRequest submits many candidates. Candidates are validated one by
// one so a bad row is reported instead of failing the whole request.
type BulkImportRequest struct {
	Mode    string         `json:"mode" validate:"required,oneof=atomic partial"`
	Entries []EntryRequest `json:"entries" validate:"required,min=1"`
}

// EntryListQuery binds the filters of GET /timetable/entries.
type EntryListQuery struct {
	ClassID   string `form:"classId"`
	TeacherID string `form:"teacherId"`
	RoomID    string `form:"roomId"`
	DayOfWeek *int   `form:"dayOfWeek" validate:"omitempty,min=0,max=6"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	Limit     int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

// ToFilter converts the query into a repository filter.
func (q EntryListQuery) ToFilter() models.EntryFilter {
	return models.EntryFilter{
		ClassID:   q.ClassID,
		TeacherID: q.TeacherID,
		RoomID:    q.RoomID,
		DayOfWeek: q.DayOfWeek,
		Page:      q.Page,
		PageSize:  q.Limit,
	}
}

// SuggestRequest tunes POST /timetable/conflicts/{id}:suggest.
type SuggestRequest struct {
	IncludeTimeSlots bool `json:"includeTimeSlots" form:"includeTimeSlots"`
}
