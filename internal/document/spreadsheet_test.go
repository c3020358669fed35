package document

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"quorum/console/internal/issuance"
)

func TestExportWorkbook(t *testing.T) {
	tokens := []issuance.Token{
		{UserID: 1, FirstName: "Ana", LastName: "Lopez", ApartmentNumber: "101", AutoLoginURL: "https://c.test/a/1"},
		{UserID: 2, FirstName: "Luis", LastName: "Marin", ApartmentNumber: "102", AutoLoginURL: "https://c.test/a/2"},
	}

	data, err := ExportWorkbook(tokens)
	if err != nil {
		t.Fatalf("export error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer f.Close()

	header, err := f.GetCellValue(tokenSheet, "A1")
	if err != nil || header != "Name" {
		t.Fatalf("expected Name header, got %q (%v)", header, err)
	}
	name, _ := f.GetCellValue(tokenSheet, "A2")
	if name != "Ana Lopez" {
		t.Fatalf("expected Ana Lopez in A2, got %q", name)
	}
	apartment, _ := f.GetCellValue(tokenSheet, "B3")
	if apartment != "102" {
		t.Fatalf("expected 102 in B3, got %q", apartment)
	}
	url, _ := f.GetCellValue(tokenSheet, "C2")
	if url != "https://c.test/a/1" {
		t.Fatalf("expected access url in C2, got %q", url)
	}
}

func TestExportWorkbookEmpty(t *testing.T) {
	data, err := ExportWorkbook(nil)
	if err != nil {
		t.Fatalf("export error: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(tokenSheet)
	if err != nil {
		t.Fatalf("rows error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header row only, got %d rows", len(rows))
	}
}
