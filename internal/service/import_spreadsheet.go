package service

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// ImportSheetName is the preferred worksheet; the first sheet is used when absent.
const ImportSheetName = "entries"

// RowError reports a spreadsheet row that could not be turned into a candidate.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

var requiredColumns = []string{"classid", "subjectid", "teacherid", "roomid", "dayofweek", "timeslotid", "startdate"}

var weekdayNames = map[string]int{
	"sunday": 0, "sun": 0,
	"monday": 1, "mon": 1,
	"tuesday": 2, "tue": 2,
	"wednesday": 3, "wed": 3,
	"thursday": 4, "thu": 4,
	"friday": 5, "fri": 5,
	"saturday": 6, "sat": 6,
}

// ParseSpreadsheet reads bulk-import candidates from an .xlsx workbook. The
// first row holds headers; rows are returned in sheet order with blank rows dropped.
func (s *ImportService) ParseSpreadsheet(r io.Reader) ([]dto.EntryRequest, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file is not a readable .xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "workbook has no sheets")
	}
	sheet := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, ImportSheetName) {
			sheet = name
			break
		}
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read worksheet")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "worksheet is empty")
	}

	columns := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		columns[normalizeHeader(header)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "worksheet is missing required columns",
			map[string]interface{}{"missing": missing})
	}

	var (
		out    []dto.EntryRequest
		issues []RowError
	)
	for i, row := range rows[1:] {
		rowNumber := i + 2
		cell := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if blankRow(row) {
			continue
		}
		if len(out) >= s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("worksheet exceeds the limit of %d rows", s.maxRows))
		}

		req := dto.EntryRequest{
			ID:         cell("id"),
			ClassID:    cell("classid"),
			SubjectID:  cell("subjectid"),
			TeacherID:  cell("teacherid"),
			RoomID:     cell("roomid"),
			TimeSlotID: cell("timeslotid"),
			Recurrence: cell("recurrence"),
		}
		if req.Recurrence == "" {
			req.Recurrence = string(models.RecurrenceWeekly)
		}

		day, err := parseWeekday(cell("dayofweek"))
		if err != nil {
			issues = append(issues, RowError{Row: rowNumber, Message: err.Error()})
			continue
		}
		req.DayOfWeek = &day

		start, err := parseCellDate(cell("startdate"))
		if err != nil {
			issues = append(issues, RowError{Row: rowNumber, Message: "startDate: " + err.Error()})
			continue
		}
		req.StartDate = start

		if raw := cell("enddate"); raw != "" {
			end, err := parseCellDate(raw)
			if err != nil {
				issues = append(issues, RowError{Row: rowNumber, Message: "endDate: " + err.Error()})
				continue
			}
			req.EndDate = &end
		}
		out = append(out, req)
	}

	if len(issues) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation,
			fmt.Sprintf("worksheet has %d unreadable row(s)", len(issues)),
			map[string]interface{}{"rows": issues})
	}
	if len(out) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "worksheet has no entries")
	}
	return out, nil
}

func normalizeHeader(header string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(header)))
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseWeekday(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("dayOfWeek is required")
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("dayOfWeek %d outside 0-6", n)
		}
		return n, nil
	}
	if n, ok := weekdayNames[strings.ToLower(raw)]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("dayOfWeek %q is not a weekday", raw)
}

// parseCellDate accepts Excel serial dates and ISO-8601 text.
func parseCellDate(raw string) (models.Date, error) {
	if raw == "" {
		return models.Date{}, fmt.Errorf("value is required")
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return models.Date{}, err
		}
		return models.DateOf(t), nil
	}
	return models.ParseDate(raw)
}
