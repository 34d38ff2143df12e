// Package spreadsheet opens CSV and XLSX files as row streams for the
// import engine. The format is picked by file extension; both readers
// present the same forward-only row interface.
package spreadsheet

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Source streams the raw rows of one sheet, header row first.
type Source interface {
	ReadRow() ([]string, error)
	Close() error
}

// Open returns a Source for the file, choosing the reader by extension.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return OpenXLSX(path)
	default:
		return OpenCSV(path)
	}
}

type csvSource struct {
	f *os.File
	r *csv.Reader
}

func OpenCSV(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening csv")
	}
	r := csv.NewReader(f)
	// Exports frequently have ragged rows; the mapper pads and overflows
	// as needed.
	r.FieldsPerRecord = -1
	return &csvSource{f: f, r: r}, nil
}

func (s *csvSource) ReadRow() ([]string, error) {
	row, err := s.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "reading csv row")
	}
	return row, nil
}

func (s *csvSource) Close() error {
	return s.f.Close()
}

type xlsxSource struct {
	f    *excelize.File
	rows *excelize.Rows
}

// OpenXLSX streams the first sheet of a workbook.
func OpenXLSX(path string) (Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	sheet := f.GetSheetName(0)
	if sheet == "" {
		_ = f.Close()
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "reading sheet")
	}
	return &xlsxSource{f: f, rows: rows}, nil
}

func (s *xlsxSource) ReadRow() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, errors.Wrap(err, "iterating rows")
		}
		return nil, io.EOF
	}
	cells, err := s.rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading row cells")
	}
	return cells, nil
}

func (s *xlsxSource) Close() error {
	if err := s.rows.Close(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
