package document

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"quorum/console/internal/qr"
)

func TestPageCount(t *testing.T) {
	cases := []struct {
		items    int
		capacity int
		pages    int
	}{
		{0, 21, 0},
		{1, 21, 1},
		{21, 21, 1},
		{22, 21, 2},
		{25, 21, 2},
		{42, 21, 2},
		{43, 21, 3},
		{5, 0, 0},
	}
	for _, c := range cases {
		if got := PageCount(c.items, c.capacity); got != c.pages {
			t.Fatalf("PageCount(%d, %d) = %d, expected %d", c.items, c.capacity, got, c.pages)
		}
	}
}

func TestPaginatePreservesOrder(t *testing.T) {
	items := make([]Item, 25)
	for i := range items {
		items[i] = Item{FullName: fmt.Sprintf("resident-%d", i)}
	}

	pages := Paginate(items, 21)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if len(pages[0]) != 21 || len(pages[1]) != 4 {
		t.Fatalf("unexpected page sizes: %d and %d", len(pages[0]), len(pages[1]))
	}

	seen := 0
	for _, page := range pages {
		for _, item := range page {
			expected := fmt.Sprintf("resident-%d", seen)
			if item.FullName != expected {
				t.Fatalf("expected %s at position %d, got %s", expected, seen, item.FullName)
			}
			seen++
		}
	}
	if seen != len(items) {
		t.Fatalf("expected every item exactly once, saw %d of %d", seen, len(items))
	}
}

func TestDefaultPageConfigCapacity(t *testing.T) {
	cfg := DefaultPageConfig("Torre Norte", time.Now())
	if cfg.Capacity() != 21 {
		t.Fatalf("expected capacity 21, got %d", cfg.Capacity())
	}
}

func TestComposePDF(t *testing.T) {
	image, err := qr.Encode("https://condo.test/auto-login/abc", qr.DefaultConfig())
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	items := make([]Item, 25)
	for i := range items {
		items[i] = Item{
			Image:     image,
			UnitName:  "Torre Norte",
			FullName:  fmt.Sprintf("Resident %d", i),
			Apartment: fmt.Sprintf("%d", 100+i),
		}
	}

	cfg := DefaultPageConfig("Torre Norte", time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC))
	data, err := ComposePDF(items, cfg)
	if err != nil {
		t.Fatalf("compose error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected PDF output")
	}
}

func TestFilenames(t *testing.T) {
	generatedAt := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)
	if got := DocumentFilename("Torre Norte", generatedAt); got != "QR_Torre_Norte_2025-09-15.pdf" {
		t.Fatalf("unexpected document filename %q", got)
	}
	if got := WorkbookFilename("Torre Norte", generatedAt); got != "tokens_qr_Torre_Norte_2025-09-15.xlsx" {
		t.Fatalf("unexpected workbook filename %q", got)
	}
	if got := DocumentFilename("  ", generatedAt); got != "QR_unit_2025-09-15.pdf" {
		t.Fatalf("unexpected fallback filename %q", got)
	}
}
