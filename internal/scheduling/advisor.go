package scheduling

import (
	"fmt"
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// SuggestRequest carries a conflict and the snapshot it was detected against.
type SuggestRequest struct {
	Conflict  models.Conflict
	Candidate models.TimetableEntry
	Existing  []models.TimetableEntry
	Catalog   models.Catalog
	// IncludeTimeSlots adds same-day slot moves to teacher and room conflicts.
	IncludeTimeSlots bool
}

// Advisor proposes conflict-free substitutions for a conflicting entry.
type Advisor struct {
	opts Options
}

// NewAdvisor builds an advisor whose verification runs use opts.
func NewAdvisor(opts Options) *Advisor {
	return &Advisor{opts: opts}
}

// SuggestFixes returns ranked substitutions that each re-detect with zero
// conflicts. No viable fix yields an empty slice, not an error.
func (a *Advisor) SuggestFixes(req SuggestRequest) ([]models.Suggestion, error) {
	candidate := req.Candidate
	if candidate.ID != req.Conflict.CandidateID {
		return nil, fmt.Errorf("candidate %s does not match conflict candidate %s", candidate.ID, req.Conflict.CandidateID)
	}

	slots := req.Catalog.Slots()
	currentSlot, ok := slots[candidate.TimeSlotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimeSlot, candidate.TimeSlotID)
	}
	currentRoom, _ := req.Catalog.RoomByID(candidate.RoomID)

	detector := NewDetector(slots, a.opts)
	ix := NewIndex(req.Existing)

	var proposals []models.Suggestion
	switch req.Conflict.Kind {
	case models.ConflictTeacher:
		proposals = append(proposals, teacherSwaps(candidate, req.Catalog)...)
	case models.ConflictRoom:
		proposals = append(proposals, roomSwaps(candidate, currentRoom, req.Catalog)...)
	}
	if req.Conflict.Kind == models.ConflictClass || req.IncludeTimeSlots {
		proposals = append(proposals, slotMoves(candidate, currentSlot, req.Catalog)...)
	}

	out := make([]models.Suggestion, 0, len(proposals))
	for _, s := range proposals {
		conflicts, err := detector.DetectIndexed(s.ReplacementEntry, ix)
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SameRoomKind != out[j].SameRoomKind {
			return out[i].SameRoomKind
		}
		if out[i].MinuteDistance != out[j].MinuteDistance {
			return out[i].MinuteDistance < out[j].MinuteDistance
		}
		return substitutedID(out[i]) < substitutedID(out[j])
	})
	return out, nil
}

func teacherSwaps(candidate models.TimetableEntry, catalog models.Catalog) []models.Suggestion {
	var out []models.Suggestion
	for _, t := range catalog.Teachers {
		if t.ID == candidate.TeacherID || !t.QualifiedFor(candidate.SubjectID) {
			continue
		}
		replacement := candidate
		replacement.TeacherID = t.ID
		out = append(out, models.Suggestion{
			Type:             models.SuggestTeacher,
			TeacherID:        t.ID,
			SameRoomKind:     true,
			ReplacementEntry: replacement,
		})
	}
	return out
}

func roomSwaps(candidate models.TimetableEntry, current models.Room, catalog models.Catalog) []models.Suggestion {
	class, _ := catalog.ClassByID(candidate.ClassID)
	var out []models.Suggestion
	for _, r := range catalog.Rooms {
		if r.ID == candidate.RoomID || r.Capacity < class.StudentCount {
			continue
		}
		replacement := candidate
		replacement.RoomID = r.ID
		out = append(out, models.Suggestion{
			Type:             models.SuggestRoom,
			RoomID:           r.ID,
			SameRoomKind:     r.Kind == current.Kind,
			ReplacementEntry: replacement,
		})
	}
	return out
}

func slotMoves(candidate models.TimetableEntry, current models.TimeSlot, catalog models.Catalog) []models.Suggestion {
	var out []models.Suggestion
	for _, s := range catalog.TimeSlots {
		if s.ID == candidate.TimeSlotID {
			continue
		}
		replacement := candidate
		replacement.TimeSlotID = s.ID
		distance := s.StartMinute - current.StartMinute
		if distance < 0 {
			distance = -distance
		}
		out = append(out, models.Suggestion{
			Type:             models.SuggestTimeSlot,
			TimeSlotID:       s.ID,
			SameRoomKind:     true,
			MinuteDistance:   distance,
			ReplacementEntry: replacement,
		})
	}
	return out
}

func substitutedID(s models.Suggestion) string {
	switch s.Type {
	case models.SuggestTeacher:
		return s.TeacherID
	case models.SuggestRoom:
		return s.RoomID
	default:
		return s.TimeSlotID
	}
}
