package remittance

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

var reportHeader = append([]string{"Line Number", "Error Reason", "Suggested Fix"}, Columns...)

// WriteErrorCSV writes one report row per rejected input row, followed by
// the row's original column values.
func WriteErrorCSV(w io.Writer, errs []RowError) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, e := range errs {
		rec := append([]string{strconv.Itoa(e.Line), e.Err.Reason, e.Err.SuggestedFix()}, e.Row.Record()...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReportFileName names the error report of a job.
func ReportFileName(ictx *IngestionContext) string {
	return fmt.Sprintf("remittance_errors_%s.csv", ictx.JobID)
}

// WriteErrorReport writes the run's error CSV into dir and returns its path.
// The caller owns the file.
func WriteErrorReport(dir string, ictx *IngestionContext) (string, error) {
	path := filepath.Join(dir, ReportFileName(ictx))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create error report: %w", err)
	}
	if err := WriteErrorCSV(f, ictx.Errors); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write error report: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close error report: %w", err)
	}
	return path, nil
}
