package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const entryColumns = "school_id, id, class_id, subject_id, teacher_id, room_id, day_of_week, time_slot_id, recurrence, start_date, end_date, created_at, updated_at"

const insertEntryQuery = `INSERT INTO timetable_entries (` + entryColumns + `) VALUES (:school_id, :id, :class_id, :subject_id, :teacher_id, :room_id, :day_of_week, :time_slot_id, :recurrence, :start_date, :end_date, :created_at, :updated_at)`

// referenceColumns maps catalog collections to the entry column that points at them.
var referenceColumns = map[models.CatalogKind]string{
	models.CatalogTimeSlots: "time_slot_id",
	models.CatalogSubjects:  "subject_id",
	models.CatalogTeachers:  "teacher_id",
	models.CatalogRooms:     "room_id",
	models.CatalogClasses:   "class_id",
}

// TimetableEntryRepository persists timetable entries. Queries are written with
// '?' placeholders and rebound for the active driver.
type TimetableEntryRepository struct {
	db *sqlx.DB
}

// NewTimetableEntryRepository creates a new entry repository.
func NewTimetableEntryRepository(db *sqlx.DB) *TimetableEntryRepository {
	return &TimetableEntryRepository{db: db}
}

// List returns a tenant's entries with optional filtering and pagination.
func (r *TimetableEntryRepository) List(ctx context.Context, schoolID string, filter models.EntryFilter) ([]models.TimetableEntry, int, error) {
	conditions := []string{"school_id = ?"}
	args := []interface{}{schoolID}

	if filter.ClassID != "" {
		conditions = append(conditions, "class_id = ?")
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, "teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, "day_of_week = ?")
		args = append(args, *filter.DayOfWeek)
	}

	base := "FROM timetable_entries WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY day_of_week ASC, time_slot_id ASC, id ASC LIMIT %d OFFSET %d", entryColumns, base, size, offset)
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list timetable entries: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return nil, 0, fmt.Errorf("count timetable entries: %w", err)
	}

	return entries, total, nil
}

// ListByTenant loads every entry of a tenant, the snapshot conflict checks run against.
func (r *TimetableEntryRepository) ListByTenant(ctx context.Context, schoolID string) ([]models.TimetableEntry, error) {
	query := r.db.Rebind("SELECT " + entryColumns + " FROM timetable_entries WHERE school_id = ? ORDER BY created_at ASC, id ASC")
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, schoolID); err != nil {
		return nil, fmt.Errorf("list tenant timetable entries: %w", err)
	}
	return entries, nil
}

// ListByDay is the storage-side bucket prefilter: one tenant, one weekday, any of the three resources.
func (r *TimetableEntryRepository) ListByDay(ctx context.Context, schoolID string, day int, teacherID, roomID, classID string) ([]models.TimetableEntry, error) {
	query := r.db.Rebind("SELECT " + entryColumns + " FROM timetable_entries WHERE school_id = ? AND day_of_week = ? AND (teacher_id = ? OR room_id = ? OR class_id = ?) ORDER BY created_at ASC, id ASC")
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, schoolID, day, teacherID, roomID, classID); err != nil {
		return nil, fmt.Errorf("list timetable entries by day: %w", err)
	}
	return entries, nil
}

// FindByID loads one entry. A missing row surfaces as sql.ErrNoRows.
func (r *TimetableEntryRepository) FindByID(ctx context.Context, schoolID, id string) (*models.TimetableEntry, error) {
	query := r.db.Rebind("SELECT " + entryColumns + " FROM timetable_entries WHERE school_id = ? AND id = ?")
	var entry models.TimetableEntry
	if err := r.db.GetContext(ctx, &entry, query, schoolID, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create stores a new entry record.
func (r *TimetableEntryRepository) Create(ctx context.Context, entry *models.TimetableEntry) error {
	prepareEntry(entry, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertEntryQuery, entry); err != nil {
		return fmt.Errorf("create timetable entry: %w", err)
	}
	return nil
}

// Update replaces every mutable field of an entry. A missing row surfaces as sql.ErrNoRows.
func (r *TimetableEntryRepository) Update(ctx context.Context, entry *models.TimetableEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_entries SET class_id = :class_id, subject_id = :subject_id, teacher_id = :teacher_id, room_id = :room_id, day_of_week = :day_of_week, time_slot_id = :time_slot_id, recurrence = :recurrence, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE school_id = :school_id AND id = :id`
	res, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("update timetable entry: %w", err)
	}
	return requireAffected(res)
}

// Delete removes an entry. A missing row surfaces as sql.ErrNoRows.
func (r *TimetableEntryRepository) Delete(ctx context.Context, schoolID, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM timetable_entries WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return fmt.Errorf("delete timetable entry: %w", err)
	}
	return requireAffected(res)
}

// CountReferences reports how many entries point at a catalog entity.
func (r *TimetableEntryRepository) CountReferences(ctx context.Context, schoolID string, kind models.CatalogKind, id string) (int, error) {
	column, ok := referenceColumns[kind]
	if !ok {
		return 0, fmt.Errorf("unknown catalog kind %q", kind)
	}
	query := r.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM timetable_entries WHERE school_id = ? AND %s = ?", column))
	var total int
	if err := r.db.GetContext(ctx, &total, query, schoolID, id); err != nil {
		return 0, fmt.Errorf("count %s references: %w", kind, err)
	}
	return total, nil
}

// BulkCreate inserts many entries within a transaction.
func (r *TimetableEntryRepository) BulkCreate(ctx context.Context, entries []models.TimetableEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk create timetable entries: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.BulkCreateWithTx(ctx, tx, entries); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk create timetable entries: %w", err)
	}
	return nil
}

// BulkCreateWithTx inserts entries using an existing transaction.
func (r *TimetableEntryRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, entries []models.TimetableEntry) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	now := time.Now().UTC()
	for i := range entries {
		payload := entries[i]
		prepareEntry(&payload, now)
		if _, err := tx.NamedExecContext(ctx, insertEntryQuery, &payload); err != nil {
			return fmt.Errorf("bulk insert timetable entry %d: %w", i, err)
		}
		entries[i] = payload
	}
	return nil
}

func prepareEntry(entry *models.TimetableEntry, now time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
