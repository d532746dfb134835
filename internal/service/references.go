package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// MissingReference names an entry field pointing at an unknown catalog id.
type MissingReference struct {
	Field string `json:"field"`
	ID    string `json:"id"`
}

// catalogIndex answers existence lookups against one catalog snapshot.
type catalogIndex struct {
	slots    map[string]models.TimeSlot
	subjects map[string]struct{}
	teachers map[string]struct{}
	rooms    map[string]struct{}
	classes  map[string]struct{}
}

func newCatalogIndex(catalog models.Catalog) catalogIndex {
	ix := catalogIndex{
		slots:    catalog.Slots(),
		subjects: make(map[string]struct{}, len(catalog.Subjects)),
		teachers: make(map[string]struct{}, len(catalog.Teachers)),
		rooms:    make(map[string]struct{}, len(catalog.Rooms)),
		classes:  make(map[string]struct{}, len(catalog.Classes)),
	}
	for _, v := range catalog.Subjects {
		ix.subjects[v.ID] = struct{}{}
	}
	for _, v := range catalog.Teachers {
		ix.teachers[v.ID] = struct{}{}
	}
	for _, v := range catalog.Rooms {
		ix.rooms[v.ID] = struct{}{}
	}
	for _, v := range catalog.Classes {
		ix.classes[v.ID] = struct{}{}
	}
	return ix
}

func (ix catalogIndex) missing(entry models.TimetableEntry) []MissingReference {
	var out []MissingReference
	check := func(field, id string, present bool) {
		if !present {
			out = append(out, MissingReference{Field: field, ID: id})
		}
	}
	_, ok := ix.classes[entry.ClassID]
	check("classId", entry.ClassID, ok)
	_, ok = ix.subjects[entry.SubjectID]
	check("subjectId", entry.SubjectID, ok)
	_, ok = ix.teachers[entry.TeacherID]
	check("teacherId", entry.TeacherID, ok)
	_, ok = ix.rooms[entry.RoomID]
	check("roomId", entry.RoomID, ok)
	_, ok = ix.slots[entry.TimeSlotID]
	check("timeSlotId", entry.TimeSlotID, ok)
	return out
}

func referentialError(missing []MissingReference) *appErrors.Error {
	fields := make([]string, len(missing))
	for i, m := range missing {
		fields[i] = fmt.Sprintf("%s %s", m.Field, m.ID)
	}
	return appErrors.WithDetails(appErrors.ErrReferential,
		"unknown catalog references: "+strings.Join(fields, ", "),
		map[string]interface{}{"missing": missing})
}
