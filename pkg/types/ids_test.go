package types

import "testing"

func TestPageIDValidity(t *testing.T) {
	if InvalidPageID.IsValid() {
		t.Error("InvalidPageID.IsValid() = true, want false")
	}
	p := PageID{FileID: 1, PageNum: 2}
	if !p.IsValid() {
		t.Error("PageID{1,2}.IsValid() = false, want true")
	}
}

func TestPageIDLess(t *testing.T) {
	a := PageID{FileID: 1, PageNum: 5}
	b := PageID{FileID: 1, PageNum: 6}
	c := PageID{FileID: 2, PageNum: 0}

	if !a.Less(b) {
		t.Error("a.Less(b) = false, want true")
	}
	if b.Less(a) {
		t.Error("b.Less(a) = true, want false")
	}
	if !b.Less(c) {
		t.Error("b.Less(c) = false, want true (different FileID dominates)")
	}
}

func TestRIDValidity(t *testing.T) {
	if InvalidRID.IsValid() {
		t.Error("InvalidRID.IsValid() = true, want false")
	}
	r := RID{Page: PageID{FileID: 0, PageNum: 0}, Slot: 0}
	if !r.IsValid() {
		t.Error("RID{{0,0},0}.IsValid() = false, want true")
	}

	invalidPageRID := RID{Page: InvalidPageID, Slot: 0}
	if invalidPageRID.IsValid() {
		t.Error("RID with invalid page IsValid() = true, want false")
	}
}

func TestStringers(t *testing.T) {
	if got := InvalidPageID.String(); got != "PageID(invalid)" {
		t.Errorf("InvalidPageID.String() = %q", got)
	}
	if got := InvalidRID.String(); got != "RID(invalid)" {
		t.Errorf("InvalidRID.String() = %q", got)
	}
	p := PageID{FileID: 3, PageNum: 7}
	if got := p.String(); got != "PageID(file=3,page=7)" {
		t.Errorf("PageID.String() = %q", got)
	}
}
