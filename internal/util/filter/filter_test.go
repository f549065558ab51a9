package filter

import (
	"testing"
	"time"

	"github.com/canopy-fm/canopy/internal/models"
)

func entry(name string, typ models.EntryType, size int64, modified time.Time) models.Entry {
	return models.Entry{
		Name:       name,
		Type:       typ,
		SizeBytes:  size,
		ModifiedAt: modified,
	}
}

func names(entries []models.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestApplyNameSubstring(t *testing.T) {
	entries := []models.Entry{
		entry("Budget 2026", models.EntryTypeFile, 100, time.Now()),
		entry("notes", models.EntryTypeFile, 50, time.Now()),
		entry("budget-old", models.EntryTypeFolder, 0, time.Now()),
	}

	got := Apply(entries, Criteria{Name: "budget"})
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", len(got), names(got))
	}
	if got[0].Name != "Budget 2026" || got[1].Name != "budget-old" {
		t.Errorf("unexpected match order: %v", names(got))
	}
}

func TestApplyDescription(t *testing.T) {
	entries := []models.Entry{
		{Name: "a", Description: "Quarterly report"},
		{Name: "b", Description: "scratch"},
	}

	got := Apply(entries, Criteria{Description: "REPORT"})
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("expected [a], got %v", names(got))
	}
}

func TestApplyDateRange(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []models.Entry{
		entry("early", models.EntryTypeFile, 0, base.AddDate(0, -2, 0)),
		entry("mid", models.EntryTypeFile, 0, base),
		entry("late", models.EntryTypeFile, 0, base.AddDate(0, 2, 0)),
	}

	from := base.AddDate(0, -1, 0)
	to := base.AddDate(0, 1, 0)
	got := Apply(entries, Criteria{From: &from, To: &to})
	if len(got) != 1 || got[0].Name != "mid" {
		t.Fatalf("expected [mid], got %v", names(got))
	}
}

func TestApplyEmptyCriteriaReturnsInput(t *testing.T) {
	entries := []models.Entry{entry("x", models.EntryTypeFile, 0, time.Now())}
	got := Apply(entries, Criteria{})
	if len(got) != 1 {
		t.Fatalf("expected passthrough, got %d entries", len(got))
	}
}

func TestSortFoldersFirst(t *testing.T) {
	entries := []models.Entry{
		entry("zeta.txt", models.EntryTypeFile, 10, time.Now()),
		entry("alpha", models.EntryTypeFolder, 0, time.Now()),
		entry("Beta.txt", models.EntryTypeFile, 20, time.Now()),
		entry("Gamma", models.EntryTypeFolder, 0, time.Now()),
	}

	Sort(entries, "name", true)
	want := []string{"alpha", "Gamma", "Beta.txt", "zeta.txt"}
	for i, name := range want {
		if entries[i].Name != name {
			t.Fatalf("position %d: want %q, got %v", i, name, names(entries))
		}
	}
}

func TestSortBySizeDescending(t *testing.T) {
	entries := []models.Entry{
		entry("small", models.EntryTypeFile, 10, time.Now()),
		entry("big", models.EntryTypeFile, 1000, time.Now()),
		entry("mid", models.EntryTypeFile, 100, time.Now()),
	}

	Sort(entries, "size", false)
	want := []string{"big", "mid", "small"}
	for i, name := range want {
		if entries[i].Name != name {
			t.Fatalf("position %d: want %q, got %v", i, name, names(entries))
		}
	}
}

func TestSortByDate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.Entry{
		entry("b", models.EntryTypeFile, 0, base.AddDate(0, 1, 0)),
		entry("a", models.EntryTypeFile, 0, base),
	}

	Sort(entries, "date", true)
	if entries[0].Name != "a" {
		t.Fatalf("expected oldest first, got %v", names(entries))
	}
}
