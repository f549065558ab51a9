package state

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/config"
	"github.com/canopy-fm/canopy/internal/events"
	"github.com/canopy-fm/canopy/internal/util/filter"
)

// Well-formed 24-hex identifiers for fixtures.
const (
	idA = "aaaaaaaaaaaaaaaaaaaaaaa1"
	idB = "bbbbbbbbbbbbbbbbbbbbbbb1"
	idC = "ccccccccccccccccccccccc1"
	idD = "ddddddddddddddddddddddd1"
	idF = "fffffffffffffffffffffff1"
)

func wireFolder(id, name string, parent *string, children ...map[string]any) map[string]any {
	entry := map[string]any{
		"_id":      id,
		"type":     "folder",
		"name":     name,
		"parentId": parent,
	}
	if len(children) > 0 {
		entry["children"] = children
	}
	return entry
}

func wireFile(id, name string, parent *string) map[string]any {
	return map[string]any{
		"_id":      id,
		"type":     "file",
		"name":     name,
		"parentId": parent,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func listing(entries ...map[string]any) map[string]any {
	if entries == nil {
		entries = []map[string]any{}
	}
	return map[string]any{"results": entries, "total": len(entries)}
}

// newTestStore wires a store to a fake backend. The revalidation delay is
// shortened so debounce tests finish quickly.
func newTestStore(t *testing.T, handler http.Handler) (*Store, *events.EventBus) {
	t.Helper()

	srv := httptest.NewServer(handler)
	client, err := api.NewClient(&config.Config{APIBaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	bus := events.NewEventBus(128)
	store := New(client, bus)
	store.revalidateDelay = 20 * time.Millisecond

	t.Cleanup(func() {
		store.Close()
		srv.Close()
		bus.Close()
	})
	return store, bus
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestFetchListingRootEnrichesCounts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/root", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFolder(idA, "Projects", nil), wireFolder(idB, "Archive", nil)))
	})
	mux.HandleFunc("/api/folders/"+idA+"/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"folders": 3, "files": 7})
	})
	mux.HandleFunc("/api/folders/"+idB+"/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"folders": 0, "files": 2})
	})

	store, _ := newTestStore(t, mux)
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("FetchListing: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	roots := store.RootListing()
	if len(roots) != 2 {
		t.Fatalf("expected 2 enriched roots, got %d", len(roots))
	}
	if roots[0].Counts.Files != 7 || roots[1].Counts.Files != 2 {
		t.Errorf("counts not enriched: %+v", roots)
	}
	if store.Total() != 2 {
		t.Errorf("total = %d, want 2", store.Total())
	}
}

func TestFetchListingFolderClearsRootCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/root", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFolder(idA, "Projects", nil)))
	})
	mux.HandleFunc("/api/folders/"+idA+"/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"folders": 0, "files": 1})
	})
	mux.HandleFunc("/api/folders/"+idA+"/contents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFile(idF, "report.txt", strptr(idA))))
	})

	store, _ := newTestStore(t, mux)
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("root fetch: %v", err)
	}
	if len(store.RootListing()) != 1 {
		t.Fatal("root cache not populated")
	}

	folderID := idA
	store.NavigateToPath([]string{"Projects"}, &folderID)
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("folder fetch: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 || entries[0].Name != "report.txt" {
		t.Fatalf("unexpected folder listing: %+v", entries)
	}
	if len(store.RootListing()) != 0 {
		t.Error("root-with-counts cache should be cleared when listing a folder")
	}
}

func TestFetchListingFailureClearsToEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/root", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFolder(idA, "Projects", nil)))
	})
	mux.HandleFunc("/api/folders/"+idA+"/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"folders": 0, "files": 0})
	})
	mux.HandleFunc("/api/folders/"+idB+"/contents", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	store, _ := newTestStore(t, mux)
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("root fetch: %v", err)
	}
	if len(store.Entries()) != 1 {
		t.Fatal("expected seeded listing")
	}

	folderID := idB
	store.NavigateToPath([]string{"Missing"}, &folderID)
	if err := store.FetchListing(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}

	if len(store.Entries()) != 0 || store.Total() != 0 {
		t.Errorf("listing not cleared: %d entries, total %d", len(store.Entries()), store.Total())
	}
	if store.LastError() == nil {
		t.Error("last error not recorded")
	}
	if store.IsLoading() {
		t.Error("loading flag stuck")
	}
}

func TestStaleListingResponseDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/"+idA+"/contents", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		writeJSON(t, w, listing(wireFile(idF, "stale.txt", strptr(idA))))
	})
	mux.HandleFunc("/api/folders/root", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFolder(idB, "Fresh", nil)))
	})
	mux.HandleFunc("/api/folders/"+idB+"/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"folders": 0, "files": 0})
	})

	store, _ := newTestStore(t, mux)

	folderID := idA
	store.NavigateToPath([]string{"Slow"}, &folderID)
	slowDone := make(chan error, 1)
	go func() {
		slowDone <- store.FetchListing(context.Background())
	}()
	<-started

	store.NavigateToPath(nil, nil)
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("fresh fetch: %v", err)
	}

	close(release)
	if err := <-slowDone; err != nil {
		t.Fatalf("slow fetch: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 || entries[0].Name != "Fresh" {
		t.Errorf("stale response overwrote newer state: %+v", entries)
	}
}

func TestApplyAndClearFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/"+idA+"/contents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(
			wireFile(idF, "report.txt", strptr(idA)),
			wireFile(idC, "notes.txt", strptr(idA)),
		))
	})

	store, _ := newTestStore(t, mux)
	folderID := idA
	store.NavigateToPath([]string{"Projects"}, &folderID)
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("FetchListing: %v", err)
	}

	store.SetPage(3)
	store.ApplyFilters(filter.Criteria{Name: "report"})

	entries := store.Entries()
	if len(entries) != 1 || entries[0].Name != "report.txt" {
		t.Fatalf("filter not applied: %+v", entries)
	}
	store.mu.Lock()
	page := store.page
	store.mu.Unlock()
	if page != 1 {
		t.Errorf("page = %d, want reset to 1", page)
	}

	store.ClearFilters()
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(store.Entries()) != 2 {
		t.Errorf("clear filters did not restore the full listing: %+v", store.Entries())
	}
}

func TestRunUnifiedSearchRevealsMatches(t *testing.T) {
	parentA := strptr(idA)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "budget" {
			t.Errorf("query param = %q, want budget", got)
		}
		writeJSON(t, w, listing(
			wireFolder(idB, "Budgets", parentA),
			wireFile(idF, "budget.xlsx", strptr(idB)),
		))
	})
	mux.HandleFunc("/api/folders/tree", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"results": []map[string]any{
			wireFolder(idA, "Projects", nil, wireFolder(idB, "Budgets", parentA)),
		}})
	})
	mux.HandleFunc("/api/folders/"+idA+"/contents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFolder(idB, "Budgets", parentA)))
	})
	mux.HandleFunc("/api/folders/"+idB+"/contents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFile(idF, "budget.xlsx", strptr(idB))))
	})

	store, _ := newTestStore(t, mux)
	if err := store.FetchFolderTree(context.Background()); err != nil {
		t.Fatalf("FetchFolderTree: %v", err)
	}
	if err := store.RunUnifiedSearch(context.Background(), "budget"); err != nil {
		t.Fatalf("RunUnifiedSearch: %v", err)
	}

	if len(store.Entries()) != 2 {
		t.Fatalf("expected 2 search results, got %d", len(store.Entries()))
	}
	if !store.IsExpanded(idA, ViewTree) || !store.IsExpanded(idB, ViewTree) {
		t.Error("matching folders not revealed in tree")
	}
	if store.SearchQuery() != "budget" {
		t.Errorf("search query = %q", store.SearchQuery())
	}
}

func TestNavigateToPathPublishesPathEvent(t *testing.T) {
	store, bus := newTestStore(t, http.NewServeMux())
	pathCh := bus.Subscribe(events.EventPathChanged)

	folderID := idA
	store.NavigateToPath([]string{"Projects", "Budgets"}, &folderID)

	select {
	case ev := <-pathCh:
		pc := ev.(events.PathChangedEvent)
		if pc.FolderID != idA {
			t.Errorf("folder id = %q", pc.FolderID)
		}
		if len(pc.Path) != 3 || pc.Path[0] != RootLabel {
			t.Errorf("path = %v", pc.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("no path event published")
	}

	id, path := store.CurrentFolder()
	if id == nil || *id != idA {
		t.Error("active folder not set")
	}
	if path[0] != RootLabel {
		t.Errorf("breadcrumb must start with %q, got %v", RootLabel, path)
	}
}

func TestSelection(t *testing.T) {
	store, _ := newTestStore(t, http.NewServeMux())

	store.Select(idA)
	store.Select(idB)
	if !store.IsSelected(idA) || !store.IsSelected(idB) {
		t.Fatal("selection not recorded")
	}
	store.Deselect(idA)
	if store.IsSelected(idA) {
		t.Error("deselect failed")
	}
	store.ClearSelection()
	if len(store.SelectedIDs()) != 0 {
		t.Error("clear selection failed")
	}
}

func TestRevalidateCoalescesPerKey(t *testing.T) {
	var contentRequests atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/"+idA+"/contents", func(w http.ResponseWriter, r *http.Request) {
		contentRequests.Add(1)
		writeJSON(t, w, listing(wireFile(idF, "report.txt", strptr(idA))))
	})
	mux.HandleFunc("/api/folders/tree", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"results": []map[string]any{wireFolder(idA, "Projects", nil)}})
	})
	mux.HandleFunc("/api/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"totalFolders": 1, "totalFiles": 1})
	})
	mux.HandleFunc("/api/folders/root", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, listing(wireFolder(idA, "Projects", nil)))
	})
	mux.HandleFunc("/api/folders/"+idA+"/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"folders": 0, "files": 1})
	})

	store, _ := newTestStore(t, mux)
	if _, err := store.FetchChildrenFor(context.Background(), idA, ViewTree); err != nil {
		t.Fatalf("seed children: %v", err)
	}
	seeded := contentRequests.Load()

	for i := 0; i < 5; i++ {
		store.RevalidateQuietly(idA)
	}

	waitFor(t, 2*time.Second, func() bool {
		return contentRequests.Load() > seeded
	})
	// Give any extra (wrongly uncoalesced) timers a chance to fire.
	time.Sleep(100 * time.Millisecond)

	if got := contentRequests.Load(); got != seeded+1 {
		t.Errorf("children refetched %d times, want exactly 1", got-seeded)
	}
}

func TestRevalidateDoesNotRaiseLoading(t *testing.T) {
	var rootRequests atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/root", func(w http.ResponseWriter, r *http.Request) {
		rootRequests.Add(1)
		writeJSON(t, w, listing(wireFolder(idA, "Projects", nil)))
	})
	mux.HandleFunc("/api/folders/"+idA+"/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"folders": 0, "files": 1})
	})
	mux.HandleFunc("/api/folders/tree", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"results": []map[string]any{wireFolder(idA, "Projects", nil)}})
	})
	mux.HandleFunc("/api/counts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"totalFolders": 1, "totalFiles": 0})
	})

	store, bus := newTestStore(t, mux)
	if err := store.FetchListing(context.Background()); err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	seeded := rootRequests.Load()

	loadingCh := bus.Subscribe(events.EventListingLoading)
	store.RevalidateQuietly("")

	waitFor(t, 2*time.Second, func() bool {
		return rootRequests.Load() > seeded
	})
	// Let the event bus drain the refetch's publishes.
	time.Sleep(100 * time.Millisecond)

	if store.IsLoading() {
		t.Error("loading flag raised by background revalidation")
	}
	select {
	case ev := <-loadingCh:
		t.Errorf("background revalidation published loading event: %+v", ev)
	default:
	}
}

func strptr(s string) *string { return &s }
