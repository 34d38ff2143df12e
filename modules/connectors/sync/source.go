package sync

import "io"

// RowSource yields the raw rows of one spreadsheet, header row first. It
// is forward-only and not restartable: each pass needs its own instance.
type RowSource interface {
	// ReadRow returns the next row's cells, or io.EOF when the sheet is
	// exhausted.
	ReadRow() ([]string, error)
}

// SliceSource serves rows from memory; used by tests and by small inline
// imports.
type SliceSource struct {
	rows [][]string
	pos  int
}

func NewSliceSource(rows [][]string) *SliceSource {
	return &SliceSource{rows: rows}
}

func (s *SliceSource) ReadRow() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}
