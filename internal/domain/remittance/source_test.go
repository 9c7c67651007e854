package remittance

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func readAll(t *testing.T, src Source) [][]string {
	t.Helper()
	var out [][]string
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, rec)
	}
}

func TestOpenSource_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remit.CSV")
	body := "\ufeff" + csvHeader + "Acme Corp,Jane Doe,03/05/2024,,,99213,2,10,10\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := OpenSource(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	cols, missing := indexHeader(src.Header())
	if len(missing) != 0 {
		t.Fatalf("missing columns: %v", missing)
	}
	rows := readAll(t, src)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := cols.row(rows[0]); got.PatientName != "Jane Doe" || got.ProcedureCode != "99213" {
		t.Errorf("row = %+v", got)
	}
}

func TestOpenSource_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remit.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatal(err)
	}
	row := []interface{}{"Acme Corp (292008)", "Doe, Jane", 45356, "", "", "99213", "242", 50.25, 1000}
	if err := f.SetSheetRow(sheet, "A2", &row); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	src, err := OpenSource(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	cols, missing := indexHeader(src.Header())
	if len(missing) != 0 {
		t.Fatalf("missing columns: %v", missing)
	}
	rows := readAll(t, src)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := cols.row(rows[0])
	if got.Account != "Acme Corp (292008)" || got.CARC != "242" {
		t.Errorf("row = %+v", got)
	}
	day, ok := ParseDate(got.ServiceFrom)
	if !ok || formatDate(day) != "2024-03-05" {
		t.Errorf("service from = %q", got.ServiceFrom)
	}
	if !ParseAmount(got.LinePaidAmount).Equal(ParseAmount("50.25")) {
		t.Errorf("paid amount = %q", got.LinePaidAmount)
	}
}

func TestOpenSource_Unsupported(t *testing.T) {
	if _, err := OpenSource("remit.json"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestIndexHeader_Missing(t *testing.T) {
	_, missing := indexHeader([]string{ColAccount, "Remit  Patient   Name"})
	if len(missing) != len(Columns)-2 {
		t.Errorf("missing = %v", missing)
	}
}
