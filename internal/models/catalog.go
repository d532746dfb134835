package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// MinutesPerDay bounds TimeSlot minutes to a single day.
const MinutesPerDay = 1440

// CatalogKind names a catalog collection.
type CatalogKind string

const (
	CatalogTimeSlots CatalogKind = "timeslots"
	CatalogSubjects  CatalogKind = "subjects"
	CatalogTeachers  CatalogKind = "teachers"
	CatalogRooms     CatalogKind = "rooms"
	CatalogClasses   CatalogKind = "classes"
)

// TimeSlot is a minute range within one day. Durations may differ across slots.
type TimeSlot struct {
	SchoolID    string    `db:"school_id" json:"tenantId"`
	ID          string    `db:"id" json:"id"`
	Label       string    `db:"label" json:"label"`
	StartMinute int       `db:"start_minute" json:"startMinute"`
	EndMinute   int       `db:"end_minute" json:"endMinute"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate enforces 0 <= start < end <= 1439.
func (s TimeSlot) Validate() error {
	if s.StartMinute < 0 || s.StartMinute >= MinutesPerDay || s.EndMinute < 0 || s.EndMinute >= MinutesPerDay {
		return fmt.Errorf("time slot %s: minutes must be within 0-%d", s.ID, MinutesPerDay-1)
	}
	if s.StartMinute >= s.EndMinute {
		return fmt.Errorf("time slot %s: startMinute must be before endMinute", s.ID)
	}
	return nil
}

// Overlaps reports whether the half-open minute ranges intersect.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.StartMinute < o.EndMinute && o.StartMinute < s.EndMinute
}

// Subject is an academic subject. Color is opaque display data.
type Subject struct {
	SchoolID  string    `db:"school_id" json:"tenantId"`
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	Color     string    `db:"color" json:"color"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// IDList is a set of ids persisted as a JSON array.
type IDList []string

// Contains reports whether id is in the list.
func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Value stores the list as a JSON array. The column is TEXT on both drivers, so
// the value is a string; lib/pq would hex-encode []byte as bytea.
func (l IDList) Value() (driver.Value, error) {
	ids := []string(l)
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes a JSON array column. NULL and empty values scan as an empty list.
func (l *IDList) Scan(src interface{}) error {
	var raw types.JSONText
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("cannot scan %T into IDList: %w", src, err)
	}
	if len(raw) == 0 || string(raw) == "{}" {
		*l = IDList{}
		return nil
	}
	var ids []string
	if err := raw.Unmarshal(&ids); err != nil {
		return fmt.Errorf("decode id list: %w", err)
	}
	*l = ids
	return nil
}

// Teacher is an instructor. SubjectIDs is advisory and only filters substitute suggestions.
type Teacher struct {
	SchoolID   string    `db:"school_id" json:"tenantId"`
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	SubjectIDs IDList    `db:"subject_ids" json:"subjectIds"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// QualifiedFor reports whether the teacher may substitute for subjectID.
func (t Teacher) QualifiedFor(subjectID string) bool {
	return t.SubjectIDs.Contains(subjectID)
}

// RoomKind classifies rooms for suggestion ranking.
type RoomKind string

const (
	RoomClassroom RoomKind = "classroom"
	RoomLab       RoomKind = "lab"
	RoomHall      RoomKind = "hall"
	RoomLibrary   RoomKind = "library"
)

// Valid reports whether k is a known room kind.
func (k RoomKind) Valid() bool {
	switch k {
	case RoomClassroom, RoomLab, RoomHall, RoomLibrary:
		return true
	}
	return false
}

// Room is a bookable space. Capacity and Kind are advisory.
type Room struct {
	SchoolID  string    `db:"school_id" json:"tenantId"`
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Kind      RoomKind  `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// SchoolClass is a cohort of students taught together.
type SchoolClass struct {
	SchoolID     string    `db:"school_id" json:"tenantId"`
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Grade        string    `db:"grade" json:"grade"`
	Section      string    `db:"section" json:"section"`
	StudentCount int       `db:"student_count" json:"studentCount"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Catalog is an in-memory snapshot of one tenant's reference entities.
type Catalog struct {
	TimeSlots []TimeSlot    `json:"timeSlots"`
	Subjects  []Subject     `json:"subjects"`
	Teachers  []Teacher     `json:"teachers"`
	Rooms     []Room        `json:"rooms"`
	Classes   []SchoolClass `json:"classes"`
}

// TimeSlotByID returns the slot with id, if present.
func (c Catalog) TimeSlotByID(id string) (TimeSlot, bool) {
	for _, s := range c.TimeSlots {
		if s.ID == id {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// RoomByID returns the room with id, if present.
func (c Catalog) RoomByID(id string) (Room, bool) {
	for _, r := range c.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// ClassByID returns the class with id, if present.
func (c Catalog) ClassByID(id string) (SchoolClass, bool) {
	for _, cl := range c.Classes {
		if cl.ID == id {
			return cl, true
		}
	}
	return SchoolClass{}, false
}

// Slots indexes time slots by id.
func (c Catalog) Slots() map[string]TimeSlot {
	out := make(map[string]TimeSlot, len(c.TimeSlots))
	for _, s := range c.TimeSlots {
		out[s.ID] = s
	}
	return out
}

// CatalogFilter pages through one catalog collection.
type CatalogFilter struct {
	Search   string
	Page     int
	PageSize int
}
