package models

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	p := PageRequest{Page: -1, Size: 0}.Normalize()
	if p.Page != 0 || p.Size != DefaultPageSize || p.Sort != "id" {
		t.Fatalf("defaults %+v", p)
	}
	if p := (PageRequest{Size: 1000}).Normalize(); p.Size != MaxPageSize {
		t.Fatalf("size=%d, want %d", p.Size, MaxPageSize)
	}
}

func TestNormalizeKeepsOffsetNonNegative(t *testing.T) {
	p := PageRequest{Page: math.MaxInt / 50, Size: MaxPageSize}.Normalize()
	if p.Page != MaxPage {
		t.Fatalf("page=%d, want %d", p.Page, MaxPage)
	}
	if p.Offset() < 0 {
		t.Fatalf("offset=%d overflowed", p.Offset())
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage[int](nil, PageRequest{Page: 1, Size: 10}, 21)
	if page.Content == nil || page.TotalPages != 3 {
		t.Fatalf("page=%+v", page)
	}
}
