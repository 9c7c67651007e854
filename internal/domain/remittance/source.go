package remittance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor a
// spreadsheet.
var ErrUnsupportedFormat = errors.New("unsupported remittance file format")

// Source yields raw records after the header row. Next returns io.EOF at
// the end.
type Source interface {
	Header() []string
	Next() ([]string, error)
	Close() error
}

// SupportedFile reports whether OpenSource can read a file with this name.
func SupportedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}

// OpenSource picks a reader by file extension. CSV files are streamed;
// spreadsheets are read one row at a time from the first sheet.
func OpenSource(path string) (Source, error) {
	var (
		src Source
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		src, err = openCSV(path)
	case ".xlsx", ".xlsm":
		src, err = openXLSX(path)
	case ".xls":
		src, err = openXLS(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

type csvSource struct {
	f      *os.File
	r      *csv.Reader
	header []string
}

func openCSV(path string) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv %s: empty file", filepath.Base(path))
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return &csvSource{f: f, r: r, header: header}, nil
}

func (s *csvSource) Header() []string { return s.header }

func (s *csvSource) Next() ([]string, error) {
	return s.r.Read()
}

func (s *csvSource) Close() error { return s.f.Close() }

type xlsxSource struct {
	f      *excelize.File
	rows   *excelize.Rows
	header []string
}

func openXLSX(path string) (*xlsxSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("xlsx %s: no sheets", filepath.Base(path))
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	s := &xlsxSource{f: f, rows: rows}
	header, err := s.Next()
	if err != nil {
		s.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("xlsx %s: empty sheet", filepath.Base(path))
		}
		return nil, err
	}
	s.header = header
	return s, nil
}

func (s *xlsxSource) Header() []string { return s.header }

// Next returns raw cell values so dates arrive as serial numbers
// regardless of the sheet's display format.
func (s *xlsxSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns(excelize.Options{RawCellValue: true})
}

func (s *xlsxSource) Close() error {
	s.rows.Close()
	return s.f.Close()
}

type xlsSource struct {
	sheet  *xls.WorkSheet
	next   int
	header []string
}

func openXLS(path string) (*xlsSource, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("xls %s: no sheets", filepath.Base(path))
	}
	s := &xlsSource{sheet: sheet}
	header, err := s.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("xls %s: empty sheet", filepath.Base(path))
		}
		return nil, err
	}
	s.header = header
	return s, nil
}

func (s *xlsSource) Header() []string { return s.header }

func (s *xlsSource) Next() ([]string, error) {
	if s.next > int(s.sheet.MaxRow) {
		return nil, io.EOF
	}
	row := s.sheet.Row(s.next)
	s.next++
	if row == nil {
		return []string{}, nil
	}
	rec := make([]string, row.LastCol())
	for i := row.FirstCol(); i < row.LastCol(); i++ {
		rec[i] = row.Col(i)
	}
	return rec, nil
}

func (s *xlsSource) Close() error { return nil }
