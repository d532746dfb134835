package scheduling

import (
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type bucketKey struct {
	tenant   string
	day      int
	kind     models.ConflictKind
	resource string
}

// Index groups entries into (tenant, day, resource) buckets so a candidate only
// scans entries that share at least one of its teacher, room or class.
type Index struct {
	entries []models.TimetableEntry
	buckets map[bucketKey][]int
}

// NewIndex buckets entries. Positions follow the input order.
func NewIndex(entries []models.TimetableEntry) *Index {
	ix := &Index{
		entries: make([]models.TimetableEntry, 0, len(entries)),
		buckets: make(map[bucketKey][]int, len(entries)*3),
	}
	for _, e := range entries {
		ix.Add(e)
	}
	return ix
}

// Add appends an entry and returns its position.
func (ix *Index) Add(e models.TimetableEntry) int {
	pos := len(ix.entries)
	ix.entries = append(ix.entries, e)
	for _, key := range keysFor(e) {
		ix.buckets[key] = append(ix.buckets[key], pos)
	}
	return pos
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int { return len(ix.entries) }

// Entry returns the entry stored at pos.
func (ix *Index) Entry(pos int) models.TimetableEntry { return ix.entries[pos] }

// Candidates returns the ascending positions of entries sharing a bucket with e.
func (ix *Index) Candidates(e models.TimetableEntry) []int {
	keys := keysFor(e)
	seen := make(map[int]struct{})
	var out []int
	for _, key := range keys {
		for _, pos := range ix.buckets[key] {
			if _, dup := seen[pos]; dup {
				continue
			}
			seen[pos] = struct{}{}
			out = append(out, pos)
		}
	}
	sort.Ints(out)
	return out
}

func keysFor(e models.TimetableEntry) [3]bucketKey {
	return [3]bucketKey{
		{tenant: e.SchoolID, day: e.DayOfWeek, kind: models.ConflictTeacher, resource: e.TeacherID},
		{tenant: e.SchoolID, day: e.DayOfWeek, kind: models.ConflictRoom, resource: e.RoomID},
		{tenant: e.SchoolID, day: e.DayOfWeek, kind: models.ConflictClass, resource: e.ClassID},
	}
}
