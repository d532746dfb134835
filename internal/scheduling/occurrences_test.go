package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func date(raw string) models.Date { return models.MustParseDate(raw) }

func datePtr(raw string) *models.Date {
	d := models.MustParseDate(raw)
	return &d
}

func dateStrings(dates []models.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}

func weekly(id string, day time.Weekday, start string, end *models.Date) models.TimetableEntry {
	return models.TimetableEntry{
		SchoolID:   "school-1",
		ID:         id,
		ClassID:    "C-" + id,
		SubjectID:  "MATH",
		TeacherID:  "T-" + id,
		RoomID:     "R-" + id,
		DayOfWeek:  int(day),
		TimeSlotID: "1",
		Recurrence: models.RecurrenceWeekly,
		StartDate:  date(start),
		EndDate:    end,
	}
}

func TestOccurrencesSingle(t *testing.T) {
	e := weekly("e", time.Wednesday, "2024-03-06", nil)
	e.Recurrence = models.RecurrenceSingle

	got, err := Occurrences(e, date("2024-03-01"), datePtr("2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-06"}, dateStrings(got))

	got, err = Occurrences(e, date("2024-03-07"), datePtr("2024-03-31"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestOccurrencesWeeklyBounded(t *testing.T) {
	e := weekly("e", time.Monday, "2024-01-01", datePtr("2024-01-29"))

	got, err := Occurrences(e, models.Date{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}, dateStrings(got))

	got, err = Occurrences(e, date("2024-01-09"), datePtr("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-15"}, dateStrings(got))

	got, err = Occurrences(e, date("2024-02-01"), datePtr("2024-01-01"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOccurrencesStartsOnFirstMatchingWeekday(t *testing.T) {
	e := weekly("e", time.Monday, "2024-02-01", nil)

	got, err := Occurrences(e, models.Date{}, datePtr("2024-02-20"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-05", "2024-02-12", "2024-02-19"}, dateStrings(got))
}

func TestOccurrencesOpenEndedIsCappedAtHorizon(t *testing.T) {
	e := weekly("e", time.Monday, "2024-01-01", nil)

	got, err := Occurrences(e, models.Date{}, nil)
	require.NoError(t, err)
	require.Len(t, got, 105)
	assert.Equal(t, "2024-01-01", got[0].String())
	assert.False(t, got[len(got)-1].After(date("2024-01-01").AddDays(730)))

	short := NewResolver(28 * 24 * time.Hour)
	got, err = short.Occurrences(e, models.Date{}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestOccurrencesRejectsInvalidEntry(t *testing.T) {
	e := weekly("e", time.Monday, "2024-01-01", datePtr("2023-12-01"))
	got, err := Occurrences(e, models.Date{}, nil)
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.Nil(t, got)

	e = weekly("e", time.Monday, "2024-01-02", nil)
	e.Recurrence = models.RecurrenceSingle
	_, err = Occurrences(e, models.Date{}, nil)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestOccurrencesIsRestartable(t *testing.T) {
	e := weekly("e", time.Thursday, "2024-01-01", datePtr("2024-12-31"))
	first, err := Occurrences(e, date("2024-03-01"), datePtr("2024-09-01"))
	require.NoError(t, err)
	second, err := Occurrences(e, date("2024-03-01"), datePtr("2024-09-01"))
	require.NoError(t, err)
	assert.Equal(t, dateStrings(first), dateStrings(second))
	for _, d := range first {
		assert.Equal(t, time.Thursday, d.Weekday())
	}
}
