package emitter

import "github.com/benmeehan/kitchen-simulator/internal/models"

// History is a fixed-capacity, insertion-ordered log of sent payloads. Once
// full, adding an entry evicts the oldest one. It is not safe for concurrent
// use; the owning Emitter serialises access.
type History struct {
	limit   int
	entries []models.HistoryEntry
}

// NewHistory creates an empty History holding at most limit entries.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{
		limit:   limit,
		entries: make([]models.HistoryEntry, 0, limit),
	}
}

// Add appends entry, evicting the oldest entry when the history is full.
func (h *History) Add(entry models.HistoryEntry) {
	if len(h.entries) == h.limit {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = entry
		return
	}
	h.entries = append(h.entries, entry)
}

// Entries returns a copy of the entries, oldest first.
func (h *History) Entries() []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns the most recent entry.
func (h *History) Last() (models.HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return models.HistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of entries held.
func (h *History) Len() int {
	return len(h.entries)
}
