package document

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"quorum/console/internal/issuance"
)

const tokenSheet = "Tokens"

// ExportWorkbook serializes tokens into a single flat sheet
// (Name | Apartment | Access URL) preserving input order.
func ExportWorkbook(tokens []issuance.Token) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", tokenSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	// fixed column widths
	if err := f.SetColWidth(tokenSheet, "A", "A", 35); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(tokenSheet, "B", "B", 14); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(tokenSheet, "C", "C", 60); err != nil {
		return nil, err
	}

	headers := []string{"Name", "Apartment", "Access URL"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		if err := f.SetCellValue(tokenSheet, cell, header); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(tokenSheet, "A1", "C1", headerStyle); err != nil {
		return nil, err
	}

	for i, token := range tokens {
		row := i + 2
		if err := f.SetCellValue(tokenSheet, fmt.Sprintf("A%d", row), token.FullName()); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(tokenSheet, fmt.Sprintf("B%d", row), token.ApartmentNumber); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(tokenSheet, fmt.Sprintf("C%d", row), token.AutoLoginURL); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
