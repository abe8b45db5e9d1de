package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/tsa/internal/engine"
	"github.com/xuri/excelize/v2"
)

const (
	infoSheet   = "info"
	errorsSheet = "errors"
	// Excel limits sheet names to 31 characters.
	maxSheetName = 31
)

var summaryHeaders = []string{
	"site", "master_alias", "condition", "data_from", "data_until",
	"valid", "notvalid", "nodata", "rows",
}

var errorHeaders = []string{"collection", "scope", "kind", "severity", "message", "more"}

type styles struct {
	bold    int
	percent int
	date    int
}

// WriteSummary writes one sheet per collection plus info and errors sheets.
func WriteSummary(path string, report *engine.Report, analyzed time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	st, err := newStyles(f)
	if err != nil {
		return err
	}
	if err := f.SetSheetName("Sheet1", infoSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeInfo(f, st, report, analyzed); err != nil {
		return err
	}

	used := map[string]bool{infoSheet: true, errorsSheet: true}
	for _, cr := range report.Collections {
		if cr == nil || cr.Collection == nil {
			continue
		}
		name := sheetName(cr.Collection.Title, used)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		if err := writeCollection(f, st, name, cr, analyzed); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(errorsSheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", errorsSheet, err)
	}
	if err := writeErrors(f, st, report); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error
	if st.bold, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return st, fmt.Errorf("failed to create style: %w", err)
	}
	percent := "0.00%"
	if st.percent, err = f.NewStyle(&excelize.Style{CustomNumFmt: &percent}); err != nil {
		return st, fmt.Errorf("failed to create style: %w", err)
	}
	date := "yyyy-mm-dd hh:mm:ss"
	if st.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &date}); err != nil {
		return st, fmt.Errorf("failed to create style: %w", err)
	}
	return st, nil
}

func writeInfo(f *excelize.File, st styles, report *engine.Report, analyzed time.Time) error {
	rows := [][]any{{"analyzed", analyzed}}
	if report.Run != nil {
		rows = append(rows,
			[]any{"run", report.Run.ID},
			[]any{"title", report.Run.Title},
			[]any{"status", string(report.Run.Status)},
		)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(infoSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write info sheet: %w", err)
		}
	}
	if err := f.SetCellStyle(infoSheet, "A1", fmt.Sprintf("A%d", len(rows)), st.bold); err != nil {
		return fmt.Errorf("failed to style info sheet: %w", err)
	}
	return f.SetCellStyle(infoSheet, "B1", "B1", st.date)
}

func writeCollection(f *excelize.File, st styles, sheet string, cr *engine.CollectionResult, analyzed time.Time) error {
	coll := cr.Collection
	set := func(cell string, v any) error {
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
		}
		return nil
	}

	for cell, v := range map[string]any{
		"A1": "start", "B1": "end", "D1": "analyzed",
		"A2": coll.Window.From, "B2": coll.Window.Until, "D2": analyzed,
	} {
		if err := set(cell, v); err != nil {
			return err
		}
	}
	header := make([]any, len(summaryHeaders))
	for i, h := range summaryHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A3", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}

	row := 4
	for _, res := range cr.Results {
		cond := res.Condition
		values := []any{cond.Site, cond.MasterAlias, cond.Raw, nil, nil, nil, nil, nil, nil}
		if res.State == engine.StateEvaluated {
			r := res.Result
			if r.DataFrom != nil {
				values[3] = *r.DataFrom
			}
			if r.DataUntil != nil {
				values[4] = *r.DataUntil
			}
			values[5], values[6], values[7], values[8] = r.PctValid, r.PctInvalid, r.PctNoData, r.Rows
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
		}
		row++
	}

	last := max(row-1, 4)
	for _, s := range []struct {
		from, to string
		style    int
	}{
		{"A1", "D1", st.bold},
		{"A3", "I3", st.bold},
		{"A2", "D2", st.date},
		{"D4", fmt.Sprintf("E%d", last), st.date},
		{"F4", fmt.Sprintf("H%d", last), st.percent},
	} {
		if err := f.SetCellStyle(sheet, s.from, s.to, s.style); err != nil {
			return fmt.Errorf("failed to style %s: %w", sheet, err)
		}
	}
	if err := f.SetColWidth(sheet, "C", "C", 60); err != nil {
		return fmt.Errorf("failed to size %s: %w", sheet, err)
	}
	return f.SetColWidth(sheet, "D", "E", 20)
}

func writeErrors(f *excelize.File, st styles, report *engine.Report) error {
	header := make([]any, len(errorHeaders))
	for i, h := range errorHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(errorsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write errors header: %w", err)
	}
	row := 2
	for _, cr := range report.Collections {
		if cr == nil || cr.Collection == nil {
			continue
		}
		for _, e := range cr.Collection.Report() {
			values := []any{cr.Collection.Title, e.Scope, e.Kind, e.Severity, e.Message, e.More}
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetSheetRow(errorsSheet, cell, &values); err != nil {
				return fmt.Errorf("failed to write errors row %d: %w", row, err)
			}
			row++
		}
	}
	return f.SetCellStyle(errorsSheet, "A1", "F1", st.bold)
}

// sheetName makes title a valid, unused sheet name.
func sheetName(title string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "conditions"
	}
	name = truncate(name, maxSheetName)
	base := name
	for i := 2; used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf("_%d", i)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
