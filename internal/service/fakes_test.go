package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type mockEntryRepo struct {
	mu        sync.Mutex
	items     map[string]models.TimetableEntry
	createErr error
	failIDs   map[string]error
	bulkErr   error
	listErr   error
	creates   int
	bulkCalls int
	onCreate  func()
}

func newMockEntryRepo(entries ...models.TimetableEntry) *mockEntryRepo {
	repo := &mockEntryRepo{items: make(map[string]models.TimetableEntry)}
	for _, e := range entries {
		repo.items[e.SchoolID+"/"+e.ID] = e
	}
	return repo
}

func (m *mockEntryRepo) sorted(schoolID string) []models.TimetableEntry {
	var out []models.TimetableEntry
	for _, e := range m.items {
		if e.SchoolID == schoolID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *mockEntryRepo) List(ctx context.Context, schoolID string, filter models.EntryFilter) ([]models.TimetableEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []models.TimetableEntry
	for _, e := range m.sorted(schoolID) {
		if filter.TeacherID != "" && e.TeacherID != filter.TeacherID {
			continue
		}
		if filter.ClassID != "" && e.ClassID != filter.ClassID {
			continue
		}
		if filter.DayOfWeek != nil && e.DayOfWeek != *filter.DayOfWeek {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *mockEntryRepo) ListByTenant(ctx context.Context, schoolID string) ([]models.TimetableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(schoolID), nil
}

func (m *mockEntryRepo) ListByDay(ctx context.Context, schoolID string, day int, teacherID, roomID, classID string) ([]models.TimetableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.TimetableEntry
	for _, e := range m.sorted(schoolID) {
		if e.DayOfWeek == day && (e.TeacherID == teacherID || e.RoomID == roomID || e.ClassID == classID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntryRepo) FindByID(ctx context.Context, schoolID, id string) (*models.TimetableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[schoolID+"/"+id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *mockEntryRepo) Create(ctx context.Context, entry *models.TimetableEntry) error {
	if m.onCreate != nil {
		m.onCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if err := m.failIDs[entry.ID]; err != nil {
		return err
	}
	m.creates++
	now := time.Now().UTC()
	entry.CreatedAt = now.Add(time.Duration(m.creates) * time.Millisecond)
	entry.UpdatedAt = entry.CreatedAt
	m.items[entry.SchoolID+"/"+entry.ID] = *entry
	return nil
}

func (m *mockEntryRepo) BulkCreate(ctx context.Context, entries []models.TimetableEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls++
	if m.bulkErr != nil {
		return m.bulkErr
	}
	now := time.Now().UTC()
	for i := range entries {
		entries[i].CreatedAt = now
		entries[i].UpdatedAt = now
		m.items[entries[i].SchoolID+"/"+entries[i].ID] = entries[i]
	}
	return nil
}

func (m *mockEntryRepo) Update(ctx context.Context, entry *models.TimetableEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entry.SchoolID + "/" + entry.ID
	if _, ok := m.items[key]; !ok {
		return sql.ErrNoRows
	}
	entry.UpdatedAt = time.Now().UTC()
	m.items[key] = *entry
	return nil
}

func (m *mockEntryRepo) Delete(ctx context.Context, schoolID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := schoolID + "/" + id
	if _, ok := m.items[key]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, key)
	return nil
}

func (m *mockEntryRepo) CountReferences(ctx context.Context, schoolID string, kind models.CatalogKind, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.sorted(schoolID) {
		var ref string
		switch kind {
		case models.CatalogTimeSlots:
			ref = e.TimeSlotID
		case models.CatalogSubjects:
			ref = e.SubjectID
		case models.CatalogTeachers:
			ref = e.TeacherID
		case models.CatalogRooms:
			ref = e.RoomID
		case models.CatalogClasses:
			ref = e.ClassID
		}
		if ref == id {
			count++
		}
	}
	return count, nil
}

func (m *mockEntryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// mockCatalogRepo keeps one tenant's catalog in memory.
type mockCatalogRepo struct {
	mu      sync.Mutex
	catalog models.Catalog
	loadErr error
	saved   []interface{}
	deleted []string
}

func (m *mockCatalogRepo) Load(ctx context.Context, schoolID string) (models.Catalog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return models.Catalog{}, m.loadErr
	}
	return m.catalog, nil
}

func (m *mockCatalogRepo) List(ctx context.Context, kind models.CatalogKind, schoolID string, filter models.CatalogFilter, dest interface{}) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch d := dest.(type) {
	case *[]models.Subject:
		*d = append(*d, m.catalog.Subjects...)
		return len(*d), nil
	case *[]models.TimeSlot:
		*d = append(*d, m.catalog.TimeSlots...)
		return len(*d), nil
	}
	return 0, nil
}

func (m *mockCatalogRepo) Get(ctx context.Context, kind models.CatalogKind, schoolID, id string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found interface{}
	switch kind {
	case models.CatalogTimeSlots:
		if v, ok := m.catalog.TimeSlotByID(id); ok {
			found = &v
		}
	case models.CatalogSubjects:
		for _, v := range m.catalog.Subjects {
			if v.ID == id {
				found = &v
			}
		}
	case models.CatalogTeachers:
		for _, v := range m.catalog.Teachers {
			if v.ID == id {
				found = &v
			}
		}
	case models.CatalogRooms:
		if v, ok := m.catalog.RoomByID(id); ok {
			found = &v
		}
	case models.CatalogClasses:
		if v, ok := m.catalog.ClassByID(id); ok {
			found = &v
		}
	}
	if found == nil {
		return sql.ErrNoRows
	}
	raw, _ := json.Marshal(found)
	return json.Unmarshal(raw, dest)
}

func (m *mockCatalogRepo) Save(ctx context.Context, kind models.CatalogKind, record interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	switch v := record.(type) {
	case *models.TimeSlot:
		if v.ID == "" {
			v.ID = fmt.Sprintf("slot-%d", len(m.saved)+1)
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		m.catalog.TimeSlots = replaceSlot(m.catalog.TimeSlots, *v)
	case *models.Subject:
		if v.ID == "" {
			v.ID = fmt.Sprintf("subject-%d", len(m.saved)+1)
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		m.catalog.Subjects = append(m.catalog.Subjects, *v)
	case *models.Teacher:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		m.catalog.Teachers = append(m.catalog.Teachers, *v)
	}
	m.saved = append(m.saved, record)
	return nil
}

func replaceSlot(slots []models.TimeSlot, slot models.TimeSlot) []models.TimeSlot {
	for i := range slots {
		if slots[i].ID == slot.ID {
			slots[i] = slot
			return slots
		}
	}
	return append(slots, slot)
}

func (m *mockCatalogRepo) Delete(ctx context.Context, kind models.CatalogKind, schoolID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, string(kind)+"/"+id)
	return nil
}

func (m *mockCatalogRepo) SubjectCodeTaken(ctx context.Context, schoolID, code, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.catalog.Subjects {
		if strings.EqualFold(s.Code, code) && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// mockCache is an in-memory CacheRepository storing JSON payloads.
type mockCache struct {
	mu     sync.Mutex
	items  map[string][]byte
	sets   int
	setErr error
}

func newMockCache() *mockCache {
	return &mockCache{items: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	m.sets++
	return nil
}

func (m *mockCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

type recordingInvalidator struct {
	mu      sync.Mutex
	schools []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, schoolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schools = append(r.schools, schoolID)
}

func (r *recordingInvalidator) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.schools)
}

const testSchool = "school-1"

func intPtr(v int) *int { return &v }

func datePtr(raw string) *models.Date {
	d := models.MustParseDate(raw)
	return &d
}

// fixtureCatalog mirrors a small school: three single periods, one double
// period spanning the first two, two qualified maths teachers and three rooms.
func fixtureCatalog() models.Catalog {
	return models.Catalog{
		TimeSlots: []models.TimeSlot{
			{SchoolID: testSchool, ID: "1", StartMinute: 480, EndMinute: 525},
			{SchoolID: testSchool, ID: "2", StartMinute: 525, EndMinute: 570},
			{SchoolID: testSchool, ID: "3", StartMinute: 600, EndMinute: 645},
			{SchoolID: testSchool, ID: "D", StartMinute: 480, EndMinute: 570},
		},
		Subjects: []models.Subject{
			{SchoolID: testSchool, ID: "MATH", Code: "MATH", Name: "Mathematics"},
			{SchoolID: testSchool, ID: "BIO", Code: "BIO", Name: "Biology"},
		},
		Teachers: []models.Teacher{
			{SchoolID: testSchool, ID: "T1", Name: "Ana", SubjectIDs: models.IDList{"MATH"}},
			{SchoolID: testSchool, ID: "T2", Name: "Budi", SubjectIDs: models.IDList{"MATH"}},
			{SchoolID: testSchool, ID: "T3", Name: "Citra", SubjectIDs: models.IDList{"BIO"}},
		},
		Rooms: []models.Room{
			{SchoolID: testSchool, ID: "R1", Name: "101", Capacity: 32, Kind: models.RoomClassroom},
			{SchoolID: testSchool, ID: "R2", Name: "102", Capacity: 32, Kind: models.RoomClassroom},
			{SchoolID: testSchool, ID: "LAB", Name: "Lab", Capacity: 24, Kind: models.RoomLab},
		},
		Classes: []models.SchoolClass{
			{SchoolID: testSchool, ID: "C1", Name: "X-1", StudentCount: 30},
			{SchoolID: testSchool, ID: "C2", Name: "X-2", StudentCount: 30},
			{SchoolID: testSchool, ID: "C3", Name: "X-3", StudentCount: 30},
		},
	}
}
