package document

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Item is one credential placed on the grid: a rendered QR image plus its
// three label lines.
type Item struct {
	Image     []byte
	UnitName  string
	FullName  string
	Apartment string
}

type PageConfig struct {
	Columns     int
	Rows        int
	PageWidth   float64 // mm
	PageHeight  float64 // mm
	Margin      float64 // mm
	Title       string
	UnitName    string
	Attribution string
	GeneratedAt time.Time
}

// DefaultPageConfig is the reference layout: A4 portrait, 15mm margins,
// 3x7 grid (21 items per page).
func DefaultPageConfig(unitName string, generatedAt time.Time) PageConfig {
	return PageConfig{
		Columns:     3,
		Rows:        7,
		PageWidth:   210,
		PageHeight:  297,
		Margin:      15,
		Title:       "Access credentials",
		UnitName:    unitName,
		Attribution: "Generated by Quorum Console",
		GeneratedAt: generatedAt,
	}
}

func (c PageConfig) Capacity() int {
	return c.Columns * c.Rows
}

func (c PageConfig) cellWidth() float64 {
	return (c.PageWidth - 2*c.Margin) / float64(c.Columns)
}

func (c PageConfig) cellHeight() float64 {
	return (c.PageHeight - 2*c.Margin) / float64(c.Rows)
}

func (c PageConfig) imageSize() float64 {
	size := c.cellWidth() * 0.75
	if limit := c.cellHeight() * 0.55; limit < size {
		size = limit
	}
	return size
}

// PageCount is ceil(totalItems / capacity); the last page may be
// partially filled.
func PageCount(totalItems, capacity int) int {
	if totalItems <= 0 || capacity <= 0 {
		return 0
	}
	return (totalItems + capacity - 1) / capacity
}

// Paginate splits items into row-major pages of at most capacity items,
// preserving input order.
func Paginate(items []Item, capacity int) [][]Item {
	if capacity <= 0 {
		return nil
	}
	var pages [][]Item
	for start := 0; start < len(items); start += capacity {
		end := start + capacity
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, items[start:end])
	}
	return pages
}

// ComposePDF lays the items out on fixed-capacity grid pages and renders
// the document. Item order is preserved; every item appears exactly once.
func ComposePDF(items []Item, cfg PageConfig) ([]byte, error) {
	pages := Paginate(items, cfg.Capacity())
	totalPages := len(pages)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for pageIndex, pageItems := range pages {
		pdf.AddPage()
		drawHeader(pdf, tr, cfg)
		drawFooter(pdf, tr, cfg, pageIndex+1, totalPages)

		cellW := cfg.cellWidth()
		cellH := cfg.cellHeight()
		imageSize := cfg.imageSize()

		for i, item := range pageItems {
			column := i % cfg.Columns
			row := i / cfg.Columns
			cellX := cfg.Margin + float64(column)*cellW
			cellY := cfg.Margin + float64(row)*cellH

			imageX := cellX + (cellW-imageSize)/2
			name := fmt.Sprintf("qr-%d-%d", pageIndex, i)
			pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(item.Image))
			pdf.ImageOptions(name, imageX, cellY+1, imageSize, imageSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

			// three label lines stacked beneath the image
			pdf.SetFont("Helvetica", "B", 7)
			labelY := cellY + imageSize + 2
			pdf.SetXY(cellX, labelY)
			pdf.CellFormat(cellW, 3.2, tr(item.UnitName), "", 0, "C", false, 0, "")
			pdf.SetFont("Helvetica", "", 7)
			pdf.SetXY(cellX, labelY+3.2)
			pdf.CellFormat(cellW, 3.2, tr(item.FullName), "", 0, "C", false, 0, "")
			pdf.SetXY(cellX, labelY+6.4)
			pdf.CellFormat(cellW, 3.2, tr("Apt. "+item.Apartment), "", 0, "C", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawHeader(pdf *fpdf.Fpdf, tr func(string) string, cfg PageConfig) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(cfg.Margin, 4)
	pdf.CellFormat(0, 5, tr(cfg.Title), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(cfg.Margin, 9)
	pdf.CellFormat(0, 4, tr(cfg.UnitName), "", 0, "L", false, 0, "")
	pdf.SetXY(cfg.Margin, 9)
	pdf.CellFormat(cfg.PageWidth-2*cfg.Margin, 4, cfg.GeneratedAt.Format("2006-01-02 15:04"), "", 0, "R", false, 0, "")
}

func drawFooter(pdf *fpdf.Fpdf, tr func(string) string, cfg PageConfig, page, totalPages int) {
	pdf.SetFont("Helvetica", "", 8)
	footerY := cfg.PageHeight - 9
	pdf.SetXY(cfg.Margin, footerY)
	pdf.CellFormat(cfg.PageWidth-2*cfg.Margin, 4, fmt.Sprintf("Page %d of %d", page, totalPages), "", 0, "C", false, 0, "")
	pdf.SetXY(cfg.Margin, footerY+4)
	pdf.CellFormat(cfg.PageWidth-2*cfg.Margin, 4, tr(cfg.Attribution), "", 0, "C", false, 0, "")
}

// DocumentFilename follows the QR_<Entity>_<ISODate>.pdf pattern.
func DocumentFilename(entity string, generatedAt time.Time) string {
	return fmt.Sprintf("QR_%s_%s.pdf", sanitizeFilePart(entity), generatedAt.Format("2006-01-02"))
}

// WorkbookFilename follows the tokens_qr_<unitName>_<ISODate>.xlsx pattern.
func WorkbookFilename(unitName string, generatedAt time.Time) string {
	return fmt.Sprintf("tokens_qr_%s_%s.xlsx", sanitizeFilePart(unitName), generatedAt.Format("2006-01-02"))
}

func sanitizeFilePart(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unit"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unit"
	}
	return b.String()
}
