package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntry() TimetableEntry {
	return TimetableEntry{
		SchoolID:   "school-1",
		ID:         "e1",
		ClassID:    "C1",
		SubjectID:  "MATH",
		TeacherID:  "T1",
		RoomID:     "R1",
		DayOfWeek:  int(time.Monday),
		TimeSlotID: "1",
		Recurrence: RecurrenceWeekly,
		StartDate:  MustParseDate("2024-01-01"),
	}
}

func TestTimetableEntryValidate(t *testing.T) {
	end := MustParseDate("2023-12-31")
	friday := MustParseDate("2024-01-05")

	cases := map[string]func(e *TimetableEntry){
		"missing teacher":      func(e *TimetableEntry) { e.TeacherID = "" },
		"day out of range":     func(e *TimetableEntry) { e.DayOfWeek = 7 },
		"unknown recurrence":   func(e *TimetableEntry) { e.Recurrence = "monthly" },
		"missing start":        func(e *TimetableEntry) { e.StartDate = Date{} },
		"end before start":     func(e *TimetableEntry) { e.EndDate = &end },
		"single weekday clash": func(e *TimetableEntry) {
			e.Recurrence = RecurrenceSingle
			e.StartDate = friday
		},
		"single with end date": func(e *TimetableEntry) {
			e.Recurrence = RecurrenceSingle
			e.EndDate = &friday
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := validEntry()
			mutate(&e)
			assert.ErrorIs(t, e.Validate(), ErrInvalidEntry)
		})
	}

	e := validEntry()
	assert.NoError(t, e.Validate())

	e.Recurrence = RecurrenceSingle
	assert.NoError(t, e.Validate(), "2024-01-01 is a Monday")

	e = validEntry()
	sameDay := e.StartDate
	e.EndDate = &sameDay
	assert.NoError(t, e.Validate())
}

func TestDateJSONAndScan(t *testing.T) {
	d := MustParseDate("2024-02-05")
	raw, err := json.Marshal(struct {
		D Date  `json:"d"`
		E *Date `json:"e,omitempty"`
	}{D: d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2024-02-05"}`, string(raw))

	var decoded struct{ D Date }
	require.NoError(t, json.Unmarshal([]byte(`{"D":"2024-02-05"}`), &decoded))
	assert.True(t, decoded.D.Equal(d))
	assert.Error(t, json.Unmarshal([]byte(`{"D":"05/02/2024"}`), &decoded))

	var scanned Date
	require.NoError(t, scanned.Scan("2024-02-05"))
	assert.True(t, scanned.Equal(d))
	require.NoError(t, scanned.Scan(time.Date(2024, 2, 5, 0, 0, 0, 0, time.FixedZone("WIB", 7*3600))))
	assert.Equal(t, "2024-02-05", scanned.String())
	require.NoError(t, scanned.Scan("2024-02-05T00:00:00Z"))
	assert.True(t, scanned.Equal(d))

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", v)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, 7, d.DaysUntil(d.AddDays(7)))
}

func TestIDListRoundTrip(t *testing.T) {
	var ids IDList
	require.NoError(t, ids.Scan(`["MATH","PHYS"]`))
	assert.True(t, ids.Contains("PHYS"))
	assert.False(t, ids.Contains("BIO"))

	v, err := IDList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	for _, src := range []interface{}{nil, []byte{}, ""} {
		var empty IDList
		require.NoError(t, empty.Scan(src))
		assert.Equal(t, IDList{}, empty)
	}

	var bad IDList
	assert.Error(t, bad.Scan(42))
	assert.Error(t, bad.Scan(`{"MATH":true}`))
}

func TestTimeSlotOverlapAndValidate(t *testing.T) {
	first := TimeSlot{ID: "1", StartMinute: 480, EndMinute: 525}
	second := TimeSlot{ID: "2", StartMinute: 525, EndMinute: 570}
	double := TimeSlot{ID: "D", StartMinute: 480, EndMinute: 570}

	assert.False(t, first.Overlaps(second), "adjacent slots do not overlap")
	assert.True(t, double.Overlaps(first))
	assert.True(t, double.Overlaps(second))
	assert.NoError(t, first.Validate())
	assert.Error(t, TimeSlot{ID: "x", StartMinute: 600, EndMinute: 600}.Validate())
	assert.Error(t, TimeSlot{ID: "x", StartMinute: 0, EndMinute: 1440}.Validate())
}
