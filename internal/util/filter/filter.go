// Package filter provides client-side filtering and sorting of loaded
// listings. Server-side unified search is the primary filtering path;
// these helpers post-filter whatever listing is already in memory.
package filter

import (
	"sort"
	"strings"
	"time"

	"github.com/canopy-fm/canopy/internal/models"
)

// Criteria holds the client-held filter settings.
type Criteria struct {
	// Name is a case-insensitive substring match on the entry name.
	Name string

	// Description is a case-insensitive substring match on the description.
	Description string

	// From/To bound the modification date (inclusive). Nil means unbounded.
	From *time.Time
	To   *time.Time
}

// Empty reports whether no criterion is set.
func (c Criteria) Empty() bool {
	return c.Name == "" && c.Description == "" && c.From == nil && c.To == nil
}

// Apply returns the entries matching all set criteria, preserving order.
func Apply(entries []models.Entry, c Criteria) []models.Entry {
	if c.Empty() {
		return entries
	}

	filtered := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if c.Name != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(c.Name)) {
			continue
		}
		if c.Description != "" && !strings.Contains(strings.ToLower(e.Description), strings.ToLower(c.Description)) {
			continue
		}
		if c.From != nil && e.ModifiedAt.Before(*c.From) {
			continue
		}
		if c.To != nil && e.ModifiedAt.After(*c.To) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

// Sort orders entries in place: folders always before files, then by the
// given key. Names compare case-insensitively.
func Sort(entries []models.Entry, sortBy string, asc bool) {
	if len(entries) == 0 {
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}

		var less bool
		switch sortBy {
		case "size":
			less = a.SizeBytes < b.SizeBytes
		case "date":
			less = a.ModifiedAt.Before(b.ModifiedAt)
		default: // "name"
			less = strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}

		if asc {
			return less
		}
		return !less
	})
}
