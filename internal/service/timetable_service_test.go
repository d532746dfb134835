package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/lock"
)

func mondayE1() models.TimetableEntry {
	return models.TimetableEntry{
		SchoolID:   testSchool,
		ID:         "E1",
		ClassID:    "C1",
		SubjectID:  "MATH",
		TeacherID:  "T1",
		RoomID:     "R1",
		DayOfWeek:  int(time.Monday),
		TimeSlotID: "1",
		Recurrence: models.RecurrenceWeekly,
		StartDate:  models.MustParseDate("2024-01-01"),
		CreatedAt:  time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
	}
}

func weeklyRequest(id, teacher, room, class, slot string, start string, end *models.Date) dto.EntryRequest {
	return dto.EntryRequest{
		ID:         id,
		ClassID:    class,
		SubjectID:  "MATH",
		TeacherID:  teacher,
		RoomID:     room,
		DayOfWeek:  intPtr(int(time.Monday)),
		TimeSlotID: slot,
		Recurrence: "weekly",
		StartDate:  models.MustParseDate(start),
		EndDate:    end,
	}
}

func newTestTimetableService(repo *mockEntryRepo, guard WriteGuard, invalidator reportInvalidator) *TimetableService {
	catalog := &mockCatalogRepo{catalog: fixtureCatalog()}
	return NewTimetableService(repo, catalog, guard, invalidator, scheduling.Options{}, validator.New(), nil, zap.NewNop())
}

func requireAppError(t *testing.T, err error, target *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T", err)
	assert.Equal(t, target.Code, appErr.Code)
	assert.Equal(t, target.Status, appErr.Status)
	return appErr
}

func TestTimetableServiceCreateRejectsTeacherDoubleBooking(t *testing.T) {
	repo := newMockEntryRepo(mondayE1())
	svc := newTestTimetableService(repo, WriteGuard{}, nil)

	_, err := svc.Create(context.Background(), testSchool, weeklyRequest("E2", "T1", "R2", "C2", "1", "2024-02-01", nil))
	appErr := requireAppError(t, err, appErrors.ErrConflict)

	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	conflicts, ok := details["conflicts"].([]models.Conflict)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTeacher, conflicts[0].Kind)
	assert.Equal(t, "E2", conflicts[0].CandidateID)
	assert.Equal(t, "E1", conflicts[0].ConflictingID)
	assert.Equal(t, "2024-02-05", conflicts[0].EarliestDate().String())
	assert.Equal(t, 1, repo.count())
}

func TestTimetableServiceCreateAcceptsDisjointRange(t *testing.T) {
	repo := newMockEntryRepo(mondayE1())
	invalidator := &recordingInvalidator{}
	svc := newTestTimetableService(repo, WriteGuard{}, invalidator)

	entry, err := svc.Create(context.Background(), testSchool,
		weeklyRequest("E2", "T1", "R2", "C2", "1", "2023-09-04", datePtr("2023-12-31")))
	require.NoError(t, err)
	assert.Equal(t, "E2", entry.ID)
	assert.Equal(t, testSchool, entry.SchoolID)
	assert.Equal(t, 2, repo.count())
	assert.Equal(t, 1, invalidator.calls())
}

func TestTimetableServiceCreateEndBeforeStartIsValidationError(t *testing.T) {
	svc := newTestTimetableService(newMockEntryRepo(mondayE1()), WriteGuard{}, nil)

	_, err := svc.Create(context.Background(), testSchool,
		weeklyRequest("E2", "T1", "R2", "C2", "1", "2024-02-01", datePtr("2023-12-31")))
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestTimetableServiceCreateDoublePeriodCollidesWithSinglePeriod(t *testing.T) {
	svc := newTestTimetableService(newMockEntryRepo(mondayE1()), WriteGuard{}, nil)

	_, err := svc.Create(context.Background(), testSchool, weeklyRequest("E2", "T2", "R1", "C2", "D", "2024-01-08", nil))
	appErr := requireAppError(t, err, appErrors.ErrConflict)
	conflicts := appErr.Details.(map[string]interface{})["conflicts"].([]models.Conflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictRoom, conflicts[0].Kind)
}

func TestTimetableServiceCreateValidation(t *testing.T) {
	svc := newTestTimetableService(newMockEntryRepo(), WriteGuard{}, nil)

	missingDay := weeklyRequest("", "T1", "R1", "C1", "1", "2024-01-01", nil)
	missingDay.DayOfWeek = nil
	_, err := svc.Create(context.Background(), testSchool, missingDay)
	requireAppError(t, err, appErrors.ErrValidation)

	wrongWeekday := weeklyRequest("", "T1", "R1", "C1", "1", "2024-01-02", nil)
	wrongWeekday.Recurrence = "single"
	_, err = svc.Create(context.Background(), testSchool, wrongWeekday)
	appErr := requireAppError(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Message, "Tuesday")

	singleWithEnd := weeklyRequest("", "T1", "R1", "C1", "1", "2024-01-01", datePtr("2024-01-08"))
	singleWithEnd.Recurrence = "single"
	_, err = svc.Create(context.Background(), testSchool, singleWithEnd)
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestTimetableServiceCreateUnknownReferences(t *testing.T) {
	repo := newMockEntryRepo()
	svc := newTestTimetableService(repo, WriteGuard{}, nil)

	_, err := svc.Create(context.Background(), testSchool, weeklyRequest("", "T9", "R1", "C1", "9", "2024-01-01", nil))
	appErr := requireAppError(t, err, appErrors.ErrReferential)
	missing := appErr.Details.(map[string]interface{})["missing"].([]MissingReference)
	assert.ElementsMatch(t, []MissingReference{{Field: "teacherId", ID: "T9"}, {Field: "timeSlotId", ID: "9"}}, missing)
	assert.Zero(t, repo.count())
}

func TestTimetableServiceCreateDuplicateID(t *testing.T) {
	svc := newTestTimetableService(newMockEntryRepo(mondayE1()), WriteGuard{}, nil)

	_, err := svc.Create(context.Background(), testSchool, weeklyRequest("E1", "T3", "R2", "C2", "3", "2024-01-01", nil))
	requireAppError(t, err, appErrors.ErrConflict)
}

func TestTimetableServiceCreateStorageFailureIsRetryable(t *testing.T) {
	repo := newMockEntryRepo()
	repo.createErr = errors.New("connection reset")
	svc := newTestTimetableService(repo, WriteGuard{}, nil)

	_, err := svc.Create(context.Background(), testSchool, weeklyRequest("", "T1", "R1", "C1", "1", "2024-01-01", nil))
	appErr := requireAppError(t, err, appErrors.ErrStorage)
	assert.True(t, appErr.Retryable())
}

func TestTimetableServiceReplaceExcludesItselfAndKeepsCreatedAt(t *testing.T) {
	original := mondayE1()
	repo := newMockEntryRepo(original)
	svc := newTestTimetableService(repo, WriteGuard{}, nil)

	replaced, err := svc.Replace(context.Background(), testSchool, "E1", weeklyRequest("", "T1", "R1", "C1", "D", "2024-01-01", nil))
	require.NoError(t, err)
	assert.Equal(t, "D", replaced.TimeSlotID)
	assert.True(t, original.CreatedAt.Equal(replaced.CreatedAt))

	_, err = svc.Replace(context.Background(), testSchool, "missing", weeklyRequest("", "T1", "R1", "C1", "1", "2024-01-01", nil))
	requireAppError(t, err, appErrors.ErrNotFound)

	_, err = svc.Replace(context.Background(), testSchool, "E1", weeklyRequest("other", "T1", "R1", "C1", "1", "2024-01-01", nil))
	requireAppError(t, err, appErrors.ErrValidation)
}

func TestTimetableServiceDelete(t *testing.T) {
	repo := newMockEntryRepo(mondayE1())
	invalidator := &recordingInvalidator{}
	svc := newTestTimetableService(repo, WriteGuard{}, invalidator)

	require.NoError(t, svc.Delete(context.Background(), testSchool, "E1"))
	assert.Zero(t, repo.count())
	assert.Equal(t, 1, invalidator.calls())

	requireAppError(t, svc.Delete(context.Background(), testSchool, "E1"), appErrors.ErrNotFound)
}

func TestTimetableServiceConcurrentCreatesCommitOnce(t *testing.T) {
	repo := newMockEntryRepo()
	repo.onCreate = func() { time.Sleep(10 * time.Millisecond) }
	svc := newTestTimetableService(repo, WriteGuard{Locker: lock.NewLocal(), Wait: time.Second}, nil)

	var (
		wg        sync.WaitGroup
		succeeded int32
		conflicts int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), testSchool, weeklyRequest("", "T1", "R1", "C1", "1", "2024-01-01", nil))
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
				return
			}
			if errors.Is(err, appErrors.ErrConflict) {
				atomic.AddInt32(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(7), conflicts)
	assert.Equal(t, 1, repo.count())
}

func TestTimetableServiceLockTimeout(t *testing.T) {
	locker := lock.NewLocal()
	unlock, err := locker.Lock(context.Background(), testSchool)
	require.NoError(t, err)
	defer unlock()

	svc := newTestTimetableService(newMockEntryRepo(), WriteGuard{Locker: locker, Wait: 20 * time.Millisecond}, nil)
	_, err = svc.Create(context.Background(), testSchool, weeklyRequest("", "T1", "R1", "C1", "1", "2024-01-01", nil))
	appErr := requireAppError(t, err, appErrors.ErrLockTimeout)
	assert.True(t, appErr.Retryable())
}

func TestTimetableServiceOccurrences(t *testing.T) {
	svc := newTestTimetableService(newMockEntryRepo(mondayE1()), WriteGuard{}, nil)

	dates, err := svc.Occurrences(context.Background(), testSchool, "E1", datePtr("2024-01-02"), datePtr("2024-01-31"))
	require.NoError(t, err)
	got := make([]string, len(dates))
	for i, d := range dates {
		got[i] = d.String()
	}
	assert.Equal(t, []string{"2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}, got)

	open, err := svc.Occurrences(context.Background(), testSchool, "E1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", open[0].String())
	assert.Len(t, open, 105)

	_, err = svc.Occurrences(context.Background(), testSchool, "E1", datePtr("2024-02-01"), datePtr("2024-01-01"))
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.Occurrences(context.Background(), testSchool, "nope", nil, nil)
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestTimetableServiceList(t *testing.T) {
	second := mondayE1()
	second.ID = "E2"
	second.TeacherID = "T2"
	second.CreatedAt = second.CreatedAt.Add(time.Hour)
	svc := newTestTimetableService(newMockEntryRepo(mondayE1(), second), WriteGuard{}, nil)

	entries, pagination, err := svc.List(context.Background(), testSchool, dto.EntryListQuery{TeacherID: "T2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "E2", entries[0].ID)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)

	_, _, err = svc.List(context.Background(), testSchool, dto.EntryListQuery{DayOfWeek: intPtr(9)})
	requireAppError(t, err, appErrors.ErrValidation)
}
