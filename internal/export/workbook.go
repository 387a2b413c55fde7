package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sysdesign-ai/internal/artifact"
)

const (
	SheetPrompt       = "Prompt"
	SheetComponents   = "Components & Functions"
	SheetRequirements = "Engineering Requirements"
	SheetFMEA         = "FMEA"
	SheetDVPR         = "DVP&R"
)

// ErrRowTooWide is returned for a row holding more cells than its sheet has
// header columns. Shorter rows are padded with empty cells.
var ErrRowTooWide = errors.New("row wider than sheet header")

// Plan is everything a session has accumulated, as displayed rows.
type Plan struct {
	Prompt       string
	Components   [][]string
	Requirements [][]string
	FMEA         [][]string
	DVPR         [][]string
}

type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Sheets returns the workbook layout in its fixed order.
func (p Plan) Sheets() []Sheet {
	return []Sheet{
		{Name: SheetPrompt, Headers: []string{"Prompt"}, Rows: [][]string{{p.Prompt}}},
		{Name: SheetComponents, Headers: artifact.ComponentFunctionHeaders, Rows: p.Components},
		{Name: SheetRequirements, Headers: artifact.RequirementHeaders, Rows: p.Requirements},
		{Name: SheetFMEA, Headers: artifact.FMEAHeaders, Rows: p.FMEA},
		{Name: SheetDVPR, Headers: artifact.DVPRHeaders, Rows: p.DVPR},
	}
}

// Write renders plan as an xlsx workbook into w.
func Write(w io.Writer, plan Plan) error {
	return WriteSheets(w, plan.Sheets())
}

func WriteSheets(w io.Writer, sheets []Sheet) error {
	if len(sheets) == 0 {
		return errors.New("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style failed: %w", err)
	}

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				return fmt.Errorf("rename sheet %q failed: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("create sheet %q failed: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet, headerStyle); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook failed: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet, headerStyle int) error {
	headers := append([]string(nil), sheet.Headers...)
	if err := f.SetSheetRow(sheet.Name, "A1", &headers); err != nil {
		return fmt.Errorf("write %q header failed: %w", sheet.Name, err)
	}
	if err := f.SetRowStyle(sheet.Name, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %q header failed: %w", sheet.Name, err)
	}

	for i, row := range sheet.Rows {
		padded, err := pad(row, len(sheet.Headers))
		if err != nil {
			return fmt.Errorf("sheet %q row %d: %w", sheet.Name, i+1, err)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("sheet %q row %d: %w", sheet.Name, i+1, err)
		}
		if err := f.SetSheetRow(sheet.Name, cell, &padded); err != nil {
			return fmt.Errorf("write %q row %d failed: %w", sheet.Name, i+1, err)
		}
	}
	return nil
}

func pad(row []string, width int) ([]string, error) {
	if len(row) > width {
		return nil, fmt.Errorf("%w: %d cells for %d columns", ErrRowTooWide, len(row), width)
	}
	out := make([]string, width)
	copy(out, row)
	return out, nil
}

// FileName builds the download name of a session's workbook.
func FileName(prefix, sessionID string, at time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "plan"
	}
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s.xlsx", prefix, short, at.UTC().Format("20060102T150405Z"))
}
