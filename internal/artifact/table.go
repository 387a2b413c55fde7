package artifact

// Status tells a normalized table apart from the two placeholder outcomes.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNoData    Status = "no_data"
	StatusMalformed Status = "malformed"
)

// Table is the outcome of normalizing one stage response. Rows is empty
// unless Status is StatusOK.
type Table[R Row] struct {
	Rows   []R    `json:"rows"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Present reports whether the stage has produced any outcome at all.
func (t Table[R]) Present() bool {
	return t.Status != ""
}

// Display returns the rows as they are shown and exported: the data rows, or
// a single placeholder row carrying Reason when there are none.
func (t Table[R]) Display(width int) [][]string {
	if len(t.Rows) == 0 {
		if !t.Present() {
			return nil
		}
		placeholder := make([]string, width)
		if width > 0 {
			placeholder[0] = t.Reason
		}
		return [][]string{placeholder}
	}
	out := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, r.Cells())
	}
	return out
}

func okTable[R Row](rows []R) Table[R] {
	return Table[R]{Rows: rows, Status: StatusOK}
}

func noDataTable[R Row](reason string) Table[R] {
	return Table[R]{Status: StatusNoData, Reason: reason}
}

func malformedTable[R Row](reason string) Table[R] {
	return Table[R]{Status: StatusMalformed, Reason: reason}
}
