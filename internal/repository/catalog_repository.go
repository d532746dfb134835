package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type catalogTable struct {
	name    string
	columns []string
	search  string
	order   string
}

var catalogTables = map[models.CatalogKind]catalogTable{
	models.CatalogTimeSlots: {name: "time_slots", columns: []string{"label", "start_minute", "end_minute"}, search: "label", order: "start_minute ASC, id ASC"},
	models.CatalogSubjects:  {name: "subjects", columns: []string{"name", "code", "color"}, search: "name", order: "code ASC"},
	models.CatalogTeachers:  {name: "teachers", columns: []string{"name", "subject_ids"}, search: "name", order: "name ASC, id ASC"},
	models.CatalogRooms:     {name: "rooms", columns: []string{"name", "capacity", "kind"}, search: "name", order: "name ASC, id ASC"},
	models.CatalogClasses:   {name: "school_classes", columns: []string{"name", "grade", "section", "student_count"}, search: "name", order: "grade ASC, section ASC, id ASC"},
}

func (t catalogTable) selectColumns() string {
	return "school_id, id, " + strings.Join(t.columns, ", ") + ", created_at, updated_at"
}

func (t catalogTable) upsertQuery() string {
	cols := append([]string{"school_id", "id"}, t.columns...)
	cols = append(cols, "created_at", "updated_at")
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	sets := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		sets = append(sets, c+" = excluded."+c)
	}
	sets = append(sets, "updated_at = excluded.updated_at")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (school_id, id) DO UPDATE SET %s",
		t.name, strings.Join(cols, ", "), strings.Join(named, ", "), strings.Join(sets, ", "))
}

// CatalogRepository persists the reference entities entries point at.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Load reads a tenant's full catalog. The five collections are fetched concurrently.
func (r *CatalogRepository) Load(ctx context.Context, schoolID string) (models.Catalog, error) {
	var catalog models.Catalog
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return selectAll(gctx, r.db, models.CatalogTimeSlots, schoolID, &catalog.TimeSlots) })
	g.Go(func() error { return selectAll(gctx, r.db, models.CatalogSubjects, schoolID, &catalog.Subjects) })
	g.Go(func() error { return selectAll(gctx, r.db, models.CatalogTeachers, schoolID, &catalog.Teachers) })
	g.Go(func() error { return selectAll(gctx, r.db, models.CatalogRooms, schoolID, &catalog.Rooms) })
	g.Go(func() error { return selectAll(gctx, r.db, models.CatalogClasses, schoolID, &catalog.Classes) })
	if err := g.Wait(); err != nil {
		return models.Catalog{}, err
	}
	return catalog, nil
}

// List pages through one collection; dest must point at a slice of the matching model.
func (r *CatalogRepository) List(ctx context.Context, kind models.CatalogKind, schoolID string, filter models.CatalogFilter, dest interface{}) (int, error) {
	table, ok := catalogTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown catalog kind %q", kind)
	}

	base := "FROM " + table.name + " WHERE school_id = ?"
	args := []interface{}{schoolID}
	if filter.Search != "" {
		base += " AND LOWER(" + table.search + ") LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", table.selectColumns(), base, table.order, size, (page-1)*size)
	if err := r.db.SelectContext(ctx, dest, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("list %s: %w", kind, err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return total, nil
}

// Get loads one record into dest. A missing row surfaces as sql.ErrNoRows.
func (r *CatalogRepository) Get(ctx context.Context, kind models.CatalogKind, schoolID, id string, dest interface{}) error {
	table, ok := catalogTables[kind]
	if !ok {
		return fmt.Errorf("unknown catalog kind %q", kind)
	}
	query := r.db.Rebind("SELECT " + table.selectColumns() + " FROM " + table.name + " WHERE school_id = ? AND id = ?")
	return r.db.GetContext(ctx, dest, query, schoolID, id)
}

// Save inserts or replaces a record. record must be a pointer to a catalog model.
func (r *CatalogRepository) Save(ctx context.Context, kind models.CatalogKind, record interface{}) error {
	table, ok := catalogTables[kind]
	if !ok {
		return fmt.Errorf("unknown catalog kind %q", kind)
	}
	stampCatalogRecord(record, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, table.upsertQuery(), record); err != nil {
		return fmt.Errorf("save %s: %w", kind, err)
	}
	return nil
}

// Delete removes a record. A missing row surfaces as sql.ErrNoRows.
func (r *CatalogRepository) Delete(ctx context.Context, kind models.CatalogKind, schoolID, id string) error {
	table, ok := catalogTables[kind]
	if !ok {
		return fmt.Errorf("unknown catalog kind %q", kind)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM "+table.name+" WHERE school_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return requireAffected(res)
}

// SubjectCodeTaken reports whether another subject of the tenant already uses code.
func (r *CatalogRepository) SubjectCodeTaken(ctx context.Context, schoolID, code, excludeID string) (bool, error) {
	query := r.db.Rebind("SELECT COUNT(*) FROM subjects WHERE school_id = ? AND LOWER(code) = LOWER(?) AND id <> ?")
	var total int
	if err := r.db.GetContext(ctx, &total, query, schoolID, code, excludeID); err != nil {
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return total > 0, nil
}

func selectAll(ctx context.Context, db *sqlx.DB, kind models.CatalogKind, schoolID string, dest interface{}) error {
	table := catalogTables[kind]
	query := db.Rebind("SELECT " + table.selectColumns() + " FROM " + table.name + " WHERE school_id = ? ORDER BY " + table.order)
	if err := db.SelectContext(ctx, dest, query, schoolID); err != nil {
		return fmt.Errorf("load %s: %w", kind, err)
	}
	return nil
}

func stampCatalogRecord(record interface{}, now time.Time) {
	stamp := func(id *string, created, updated *time.Time) {
		if *id == "" {
			*id = uuid.NewString()
		}
		if created.IsZero() {
			*created = now
		}
		*updated = now
	}
	switch v := record.(type) {
	case *models.TimeSlot:
		stamp(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	case *models.Subject:
		stamp(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	case *models.Teacher:
		if v.SubjectIDs == nil {
			v.SubjectIDs = models.IDList{}
		}
		stamp(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	case *models.Room:
		stamp(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	case *models.SchoolClass:
		stamp(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	}
}
