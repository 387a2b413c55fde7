package export

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func openWorkbook(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWrite_SheetOrderAndHeaders(t *testing.T) {
	plan := Plan{
		Prompt:       "Generate experimentation plan for a coffee maker",
		Components:   [][]string{{"Thermal", "Heater", "Heat water"}},
		Requirements: [][]string{{"U1", "Hot", "T1", "92C"}},
		FMEA: [][]string{
			{"F1", "Heat water", "T1", "No heat", "Cold", "7", "Open", "3", "Fuse", "4", "84", "Sensor"},
			{"F2", "Heat water", "T1", "Overheat", "Burn", "9", "Relay", "2", "TCO", "3", "54", "Redundant TCO"},
		},
		DVPR: [][]string{{"F1", "1", "Heat-up", "Bench", "2h", "92C"}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, plan))

	f := openWorkbook(t, &buf)
	assert.Equal(t, []string{SheetPrompt, SheetComponents, SheetRequirements, SheetFMEA, SheetDVPR}, f.GetSheetList())

	prompt, err := f.GetRows(SheetPrompt)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Prompt"}, {plan.Prompt}}, prompt)

	fmea, err := f.GetRows(SheetFMEA)
	require.NoError(t, err)
	require.Len(t, fmea, 3)
	assert.Equal(t, "Recommended Actions", fmea[0][11])
	assert.Equal(t, plan.FMEA[1], fmea[2])
}

func TestWrite_ShortRowsArePadded(t *testing.T) {
	plan := Plan{
		Prompt:     "p",
		Components: [][]string{{"Only category"}, {"A", "B", "C"}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, plan))

	f := openWorkbook(t, &buf)
	cell, err := f.GetCellValue(SheetComponents, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Only category", cell)
	cell, err = f.GetCellValue(SheetComponents, "C3")
	require.NoError(t, err)
	assert.Equal(t, "C", cell)

	rows, err := f.GetRows(SheetDVPR)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWrite_WideRowRejected(t *testing.T) {
	plan := Plan{Prompt: "p", DVPR: [][]string{{"1", "2", "3", "4", "5", "6", "7"}}}

	var buf bytes.Buffer
	err := Write(&buf, plan)
	assert.True(t, errors.Is(err, ErrRowTooWide))
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	assert.Equal(t, "experimentation_plan_0123abcd_20261019T083000Z.xlsx",
		FileName("experimentation_plan", "0123abcd-ffff-4444-8888-000000000000", at))
	assert.Equal(t, "plan_x_20261019T083000Z.xlsx", FileName(" ", "x", at))
}
