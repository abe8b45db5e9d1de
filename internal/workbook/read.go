// Package workbook reads condition collections from Excel or YAML input and
// writes evaluation summaries back to Excel.
package workbook

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/tsa/internal/collection"
	"github.com/leapstack-labs/tsa/pkg/diag"
	"github.com/xuri/excelize/v2"
)

// DefaultDrop lists sheets that never hold conditions.
var DefaultDrop = []string{"info"}

// Condition rows start on this row; A2 and B2 hold the window dates.
const firstConditionRow = 4

var dateLayouts = []string{"2.1.2006", time.DateOnly, time.DateTime, "2006-01-02T15:04:05"}

// Read loads collections from path, choosing the format by extension.
func Read(path string, drop []string, opts ...collection.Option) ([]*collection.Collection, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, drop, opts...)
	case ".yaml", ".yml":
		return ReadYAML(path, opts...)
	default:
		return nil, fmt.Errorf("unsupported input format: %s", path)
	}
}

// ReadXLSX builds one collection per worksheet. Sheets named in drop are
// skipped, case-insensitively; a nil drop means DefaultDrop.
//
// Problems with the input itself are recorded on the collection, not
// returned: a bad date falls back to today and rows with empty cells are
// ignored. Reading a sheet stops at its first empty row.
func ReadXLSX(path string, drop []string, opts ...collection.Option) ([]*collection.Collection, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if drop == nil {
		drop = DefaultDrop
	}
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[strings.ToLower(strings.TrimSpace(d))] = true
	}

	var colls []*collection.Collection
	for _, sheet := range f.GetSheetList() {
		if skip[strings.ToLower(strings.TrimSpace(sheet))] {
			continue
		}
		coll, err := readSheet(f, sheet, opts)
		if err != nil {
			return nil, err
		}
		colls = append(colls, coll)
	}
	return colls, nil
}

func readSheet(f *excelize.File, sheet string, opts []collection.Option) (*collection.Collection, error) {
	var dateErrs []*diag.Error
	from, err := sheetDate(f, sheet, "A2", "start")
	if err != nil {
		dateErrs = append(dateErrs, err)
	}
	until, err := sheetDate(f, sheet, "B2", "end")
	if err != nil {
		dateErrs = append(dateErrs, err)
	}
	if from.After(until) {
		dateErrs = append(dateErrs, diag.New(diag.DegenerateWindow, "Start date (A2) must be BEFORE end date (B2)"))
		from = until
	}

	coll, cerr := collection.New(sheet, collection.DateWindow(from, until), opts...)
	if cerr != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", sheet, cerr)
	}
	for _, e := range dateErrs {
		coll.AddError(e.WithScope(sheet))
	}

	rows, err2 := f.GetRows(sheet)
	if err2 != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err2)
	}
	for i := firstConditionRow - 1; i < len(rows); i++ {
		rowNum := i + 1
		cells := make([]string, 3)
		for j := 0; j < len(cells) && j < len(rows[i]); j++ {
			cells[j] = strings.TrimSpace(rows[i][j])
		}
		if cells[0] == "" && cells[1] == "" && cells[2] == "" {
			break
		}
		if !rowComplete(coll, sheet, cells, rowNum) {
			continue
		}
		// Duplicates are recorded on the collection by Add.
		_, _ = coll.Add(cells[0], cells[1], cells[2], rowNum)
	}
	coll.Resolve()
	return coll, nil
}

// rowComplete reports whether all of site, master alias and condition are
// present, recording an error for each empty cell otherwise.
func rowComplete(coll *collection.Collection, sheet string, cells []string, row int) bool {
	ok := true
	for j, v := range cells {
		if v != "" {
			continue
		}
		ok = false
		kind := diag.InvalidIdentifier
		if j == 2 {
			kind = diag.NoBlocksProduced
		}
		cell, _ := excelize.CoordinatesToCellName(j+1, row)
		coll.AddError(diag.New(kind, "Cell %s should not be empty: row ignored", cell).WithScope(sheet))
	}
	return ok
}

// sheetDate reads a date cell. It falls back to today on any problem.
func sheetDate(f *excelize.File, sheet, cell, which string) (time.Time, *diag.Error) {
	today := truncateDay(time.Now().UTC())
	raw, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return today, diag.New(diag.DegenerateWindow, "Could not read %s date in cell %s: %v", which, cell, err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return today, diag.New(diag.DegenerateWindow, "%s date in cell %s is empty: must be a d.m.YYYY date", capitalize(which), cell)
	}
	t, ok := parseDate(raw)
	if !ok {
		return today, diag.New(diag.DegenerateWindow, "Could not read %s date in cell %s: must be a d.m.YYYY date", which, cell)
	}
	return t, nil
}

// parseDate accepts d.m.Y, ISO dates and Excel date serials.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
