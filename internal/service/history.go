package service

import "scan-service/internal/domain/scan"

// History is a bounded, most-recent-first list of scan events. It is not
// safe for concurrent use; the coordinator guards it.
type History struct {
	limit  int
	events []scan.ScanEvent
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1
	}
	return &History{limit: limit, events: make([]scan.ScanEvent, 0, limit)}
}

// Prepend inserts ev as the newest entry, evicting the oldest past the limit.
func (h *History) Prepend(ev scan.ScanEvent) {
	h.events = append(h.events, scan.ScanEvent{})
	copy(h.events[1:], h.events)
	h.events[0] = ev
	if len(h.events) > h.limit {
		h.events = h.events[:h.limit]
	}
}

// Replace swaps in ev for the entry with the same ID. It reports false when
// that entry has already been evicted or cleared.
func (h *History) Replace(ev scan.ScanEvent) bool {
	for i := range h.events {
		if h.events[i].ID == ev.ID {
			h.events[i] = ev
			return true
		}
	}
	return false
}

func (h *History) Clear() {
	h.events = h.events[:0]
}

func (h *History) Len() int {
	return len(h.events)
}

func (h *History) List() []scan.ScanEvent {
	return append([]scan.ScanEvent(nil), h.events...)
}
