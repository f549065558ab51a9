// Package state provides the observable store that is the single source of
// truth for navigation, listings, the folder tree, selection, filters, and
// upload progress. All mutation goes through store methods; views subscribe
// to the event bus and repaint from store snapshots.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/constants"
	"github.com/canopy-fm/canopy/internal/events"
	"github.com/canopy-fm/canopy/internal/models"
	"github.com/canopy-fm/canopy/internal/util/filter"
)

// RootLabel is the literal first segment of every breadcrumb path.
const RootLabel = "Root"

// View selects which of the two expansion caches an operation targets. The
// sidebar tree and the inline grid expand independently over the same folder
// graph.
type View int

const (
	ViewTree View = iota
	ViewGrid
)

// Store holds all client-side state. A single mutex serializes state
// transitions; network calls are made outside the lock and committed under
// it behind a monotonic generation check, so a stale response never
// overwrites newer state.
type Store struct {
	client *api.Client
	bus    *events.EventBus

	mu sync.Mutex

	// Navigation
	path     []string // breadcrumb names, path[0] == RootLabel
	pathIDs  []string // folder ids matching path[1:]
	folderID *string  // active folder, nil = root listing
	page     int
	pageSize int
	sortBy   string
	asc      bool

	// Filters and search
	filters     filter.Criteria
	searchQuery string // non-empty = search mode

	// Flat listing (raw, unfiltered)
	entries    []models.Entry
	total      int
	loading    bool
	lastErr    error
	listingGen uint64

	// Root listing enriched with child counts
	rootWithCounts []models.FolderWithCounts

	// Tree and dual children caches
	tree         []models.Entry
	meta         models.FolderMeta
	rootID       string
	treeChildren map[string][]models.Entry
	gridChildren map[string][]models.Entry
	gridCounts   map[string]models.FolderCounts
	expandedTree map[string]bool
	expandedGrid map[string]bool

	// Selection
	selected map[string]bool

	// Debounced revalidation
	revalidateDelay  time.Duration
	revalidateTimers map[string]*time.Timer

	// Uploads
	uploads map[string]*models.UploadTask
	streams map[string]*api.Stream

	wg     sync.WaitGroup
	closed bool
}

// New creates a store bound to the given API client and event bus.
func New(client *api.Client, bus *events.EventBus) *Store {
	return &Store{
		client:           client,
		bus:              bus,
		path:             []string{RootLabel},
		page:             1,
		pageSize:         constants.DefaultPageSize,
		sortBy:           "name",
		asc:              true,
		meta:             make(models.FolderMeta),
		treeChildren:     make(map[string][]models.Entry),
		gridChildren:     make(map[string][]models.Entry),
		gridCounts:       make(map[string]models.FolderCounts),
		expandedTree:     make(map[string]bool),
		expandedGrid:     make(map[string]bool),
		selected:         make(map[string]bool),
		revalidateDelay:  constants.RevalidateDelay,
		revalidateTimers: make(map[string]*time.Timer),
		uploads:          make(map[string]*models.UploadTask),
		streams:          make(map[string]*api.Stream),
	}
}

// Close stops revalidation timers, tears down live streams, and waits for
// in-flight upload goroutines. The event bus is owned by the caller and is
// not closed here.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	for key, timer := range s.revalidateTimers {
		timer.Stop()
		delete(s.revalidateTimers, key)
	}
	streams := make([]*api.Stream, 0, len(s.streams))
	for _, stream := range s.streams {
		streams = append(streams, stream)
	}
	s.mu.Unlock()

	for _, stream := range streams {
		stream.Close()
	}
	s.wg.Wait()
}

func base(t events.EventType) events.BaseEvent {
	return events.BaseEvent{EventType: t, Time: time.Now()}
}

func (s *Store) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func folderKey(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

// NavigateToPath sets the breadcrumb and active folder atomically. It does
// not fetch; callers follow up with FetchListing. No id validation happens
// here; validity is checked before any fetch that needs an addressable id.
func (s *Store) NavigateToPath(segments []string, folderID *string) {
	s.mu.Lock()
	s.path = append([]string{RootLabel}, segments...)
	s.folderID = folderID
	s.page = 1
	key := folderKey(folderID)
	pathCopy := make([]string, len(s.path))
	copy(pathCopy, s.path)
	s.mu.Unlock()

	s.publish(events.PathChangedEvent{BaseEvent: base(events.EventPathChanged), FolderID: key, Path: pathCopy})
}

// Client exposes the underlying API client for operations that bypass
// store state, like breadcrumb resolution and downloads.
func (s *Store) Client() *api.Client {
	return s.client
}

// CurrentFolder returns the active folder id (nil = root) and breadcrumb.
func (s *Store) CurrentFolder() (*string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pathCopy := make([]string, len(s.path))
	copy(pathCopy, s.path)
	return s.folderID, pathCopy
}

// SetPage sets the current page (1-based).
func (s *Store) SetPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	s.page = page
}

// SetPageSize sets the page size.
func (s *Store) SetPageSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size > 0 {
		s.pageSize = size
	}
}

// SetSort sets the sort key and direction for subsequent fetches.
func (s *Store) SetSort(sortBy string, asc bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortBy = sortBy
	s.asc = asc
}

// FetchListing loads the flat listing for the current mode: unified search
// when a query is active, the count-enriched root listing when no folder is
// selected, otherwise the active folder's contents. Any failure clears the
// listing to empty with total 0; no partial results are kept. A response
// from a superseded fetch is discarded, not applied.
func (s *Store) FetchListing(ctx context.Context) error {
	return s.fetchListing(ctx, false)
}

// fetchListing is the shared fetch path. In quiet mode the loading flag and
// its bracketing events are skipped and a failure leaves the current
// listing standing, so a background refresh never flashes or blanks the
// view. Quiet fetches still take a generation slot, so a user-triggered
// fetch that starts later supersedes them.
func (s *Store) fetchListing(ctx context.Context, quiet bool) error {
	s.mu.Lock()
	s.listingGen++
	gen := s.listingGen
	if !quiet {
		s.loading = true
	}
	folderID := s.folderID
	query := s.searchQuery
	criteria := s.filters
	opts := api.ListOptions{Page: s.page, PageSize: s.pageSize, SortBy: s.sortBy, Asc: s.asc}
	page, pageSize := s.page, s.pageSize
	s.mu.Unlock()

	key := folderKey(folderID)
	if !quiet {
		s.publish(events.ListingLoadingEvent{BaseEvent: base(events.EventListingLoading), FolderID: key, Loading: true})
	}

	var (
		entries []models.Entry
		total   int
		roots   []models.FolderWithCounts
		err     error
	)

	switch {
	case query != "":
		params := models.SearchParams{
			Query:       query,
			Name:        criteria.Name,
			Description: criteria.Description,
			From:        criteria.From,
			To:          criteria.To,
			Page:        page,
			PageSize:    pageSize,
		}
		var listing *models.Listing
		listing, err = s.client.UnifiedSearch(ctx, params)
		if err == nil {
			entries, total = listing.Entries, listing.Total
		}
	case folderID == nil:
		roots, entries, total, err = s.fetchRootListing(ctx)
	default:
		var listing *models.Listing
		listing, err = s.client.FolderContents(ctx, *folderID, opts)
		if err == nil {
			entries, total = listing.Entries, listing.Total
		}
	}

	s.mu.Lock()
	if gen != s.listingGen {
		s.mu.Unlock()
		log.Debug().Msgf("discarding stale listing response for folder %q", key)
		return nil
	}
	if !quiet {
		s.loading = false
	}
	if err != nil {
		if quiet {
			s.mu.Unlock()
			log.Debug().Msgf("quiet listing refresh failed for folder %q: %v", key, err)
			return err
		}
		s.entries = nil
		s.total = 0
		s.lastErr = err
		s.mu.Unlock()

		log.Error().Msgf("listing fetch failed for folder %q: %v", key, err)
		s.publish(events.ListingLoadingEvent{BaseEvent: base(events.EventListingLoading), FolderID: key, Loading: false})
		s.publish(events.ListingErrorEvent{BaseEvent: base(events.EventListingError), FolderID: key, Err: err})
		return err
	}
	s.entries = entries
	s.total = total
	s.lastErr = nil
	if folderID == nil && query == "" {
		s.rootWithCounts = roots
	} else {
		s.rootWithCounts = nil
	}
	s.mergeMetaLocked(entries)
	count := len(entries)
	s.mu.Unlock()

	if !quiet {
		s.publish(events.ListingLoadingEvent{BaseEvent: base(events.EventListingLoading), FolderID: key, Loading: false})
	}
	s.publish(events.ListingChangedEvent{BaseEvent: base(events.EventListingChanged), FolderID: key, Total: total, Count: count})
	return nil
}

// fetchRootListing lists the top-level folders and enriches each with its
// direct child counts, fetched concurrently.
func (s *Store) fetchRootListing(ctx context.Context) ([]models.FolderWithCounts, []models.Entry, int, error) {
	listing, err := s.client.RootFolders(ctx)
	if err != nil {
		return nil, nil, 0, err
	}

	roots := make([]models.FolderWithCounts, len(listing.Entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range listing.Entries {
		roots[i].Entry = entry
		if !entry.IsFolder() {
			continue
		}
		i, id := i, entry.ID
		g.Go(func() error {
			counts, err := s.client.FolderCounts(gctx, id)
			if err != nil {
				return err
			}
			roots[i].Counts = *counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, err
	}
	return roots, listing.Entries, listing.Total, nil
}

// Entries returns the visible listing: the raw loaded entries with the
// client-held filters applied. In search mode the filters were already sent
// as query parameters, so the listing passes through untouched.
func (s *Store) Entries() []models.Entry {
	s.mu.Lock()
	raw := make([]models.Entry, len(s.entries))
	copy(raw, s.entries)
	criteria := s.filters
	searching := s.searchQuery != ""
	s.mu.Unlock()

	if searching {
		return raw
	}
	return filter.Apply(raw, criteria)
}

// Total returns the authoritative server-side total for the listing.
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// IsLoading reports whether a listing fetch is in flight.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the most recent listing fetch error, if any.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RootListing returns the count-enriched root folders from the last root
// fetch. Empty when a specific folder is being listed.
func (s *Store) RootListing() []models.FolderWithCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FolderWithCounts, len(s.rootWithCounts))
	copy(out, s.rootWithCounts)
	return out
}

// ApplyFilters sets the client-held filter criteria and resets pagination
// to page 1. Outside search mode the criteria post-filter the loaded
// listing; in search mode they become query parameters on the next fetch.
func (s *Store) ApplyFilters(criteria filter.Criteria) {
	s.mu.Lock()
	s.filters = criteria
	s.page = 1
	key := folderKey(s.folderID)
	total := s.total
	count := len(s.entries)
	s.mu.Unlock()

	s.publish(events.ListingChangedEvent{BaseEvent: base(events.EventListingChanged), FolderID: key, Total: total, Count: count})
}

// ClearFilters resets all filter criteria and pagination.
func (s *Store) ClearFilters() {
	s.ApplyFilters(filter.Criteria{})
}

// Filters returns the active filter criteria.
func (s *Store) Filters() filter.Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// RunUnifiedSearch switches to search mode and loads the combined
// folder+file result set. Matching folders and the parents of matching
// files are revealed in the tree so results are visible in context.
func (s *Store) RunUnifiedSearch(ctx context.Context, query string) error {
	s.mu.Lock()
	s.searchQuery = query
	s.page = 1
	s.mu.Unlock()

	if err := s.FetchListing(ctx); err != nil {
		return err
	}

	for _, entry := range s.Entries() {
		target := entry.ID
		if !entry.IsFolder() {
			if entry.ParentID == nil {
				continue
			}
			target = *entry.ParentID
		}
		if err := s.RevealFolderInTree(ctx, target); err != nil {
			log.Debug().Msgf("search reveal skipped for %s: %v", target, err)
		}
	}
	return nil
}

// ClearSearch leaves search mode. The caller refetches to restore the
// normal listing.
func (s *Store) ClearSearch() {
	s.mu.Lock()
	s.searchQuery = ""
	s.page = 1
	s.mu.Unlock()
}

// SearchQuery returns the active free-text query, empty outside search mode.
func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}

// Select adds an entry to the selection.
func (s *Store) Select(id string) {
	s.mu.Lock()
	s.selected[id] = true
	ids := s.selectedIDsLocked()
	s.mu.Unlock()

	s.publish(events.SelectionChangedEvent{BaseEvent: base(events.EventSelectionChanged), SelectedIDs: ids})
}

// Deselect removes an entry from the selection.
func (s *Store) Deselect(id string) {
	s.mu.Lock()
	delete(s.selected, id)
	ids := s.selectedIDsLocked()
	s.mu.Unlock()

	s.publish(events.SelectionChangedEvent{BaseEvent: base(events.EventSelectionChanged), SelectedIDs: ids})
}

// ClearSelection empties the selection.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[string]bool)
	s.mu.Unlock()

	s.publish(events.SelectionChangedEvent{BaseEvent: base(events.EventSelectionChanged), SelectedIDs: []string{}})
}

// IsSelected reports whether an entry is selected.
func (s *Store) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[id]
}

// SelectedIDs returns the ids of all selected entries.
func (s *Store) SelectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedIDsLocked()
}

func (s *Store) selectedIDsLocked() []string {
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	return ids
}

// Meta returns the flattened metadata for a folder id.
func (s *Store) Meta(folderID string) (models.FolderMetaEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.meta[folderID]
	return meta, ok
}

// mergeMetaLocked folds folder entries from a listing or children fetch
// into FolderMeta. Must hold the lock.
func (s *Store) mergeMetaLocked(entries []models.Entry) {
	for _, entry := range entries {
		if entry.IsFolder() {
			s.meta[entry.ID] = models.FolderMetaEntry{Name: entry.Name, ParentID: entry.ParentID}
		}
	}
}
