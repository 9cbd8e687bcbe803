package service

import (
	"fmt"
	"testing"

	"scan-service/internal/domain/scan"
)

func TestHistory_PrependEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Prepend(scan.ScanEvent{ID: fmt.Sprint(i)})
	}

	got := h.List()
	want := []string{"5", "4", "3"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestHistory_Replace(t *testing.T) {
	h := NewHistory(2)
	h.Prepend(scan.ScanEvent{ID: "a", Payload: "A"})

	if !h.Replace(scan.ScanEvent{ID: "a", Payload: "A2"}) {
		t.Fatalf("Replace returned false")
	}
	if h.List()[0].Payload != "A2" {
		t.Errorf("entry not replaced")
	}
	if h.Replace(scan.ScanEvent{ID: "missing"}) {
		t.Errorf("Replace of missing entry returned true")
	}
}

func TestHistory_ListIsACopy(t *testing.T) {
	h := NewHistory(2)
	h.Prepend(scan.ScanEvent{ID: "a"})

	list := h.List()
	list[0].ID = "mutated"
	if h.List()[0].ID != "a" {
		t.Errorf("List exposed internal storage")
	}
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(2)
	h.Prepend(scan.ScanEvent{ID: "a"})
	h.Clear()

	if h.Len() != 0 {
		t.Errorf("Len = %d after Clear", h.Len())
	}
	h.Prepend(scan.ScanEvent{ID: "b"})
	if h.Len() != 1 {
		t.Errorf("Len = %d after reuse", h.Len())
	}
}
