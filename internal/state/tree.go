package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/constants"
	"github.com/canopy-fm/canopy/internal/events"
	"github.com/canopy-fm/canopy/internal/models"
)

// FetchFolderTree loads the full folder tree, flattens it into FolderMeta
// (merged, never replaced), and seeds the nominal root id from the first
// null-parent entry. Failure yields an empty tree, not a fatal error.
func (s *Store) FetchFolderTree(ctx context.Context) error {
	tree, err := s.client.FolderTree(ctx)

	s.mu.Lock()
	if err != nil {
		s.tree = nil
		s.mu.Unlock()
		log.Error().Msgf("folder tree fetch failed: %v", err)
		return err
	}
	s.tree = tree
	flattenTree(tree, s.meta)
	for _, entry := range tree {
		if entry.IsRoot() {
			s.rootID = entry.ID
			break
		}
	}
	s.mu.Unlock()

	s.publish(events.TreeChangedEvent{BaseEvent: base(events.EventTreeChanged)})
	return nil
}

// flattenTree folds every folder in the forest into meta.
func flattenTree(entries []models.Entry, meta models.FolderMeta) {
	for _, entry := range entries {
		if !entry.IsFolder() {
			continue
		}
		meta[entry.ID] = models.FolderMetaEntry{Name: entry.Name, ParentID: entry.ParentID}
		flattenTree(entry.Children, meta)
	}
}

// Tree returns the loaded folder forest.
func (s *Store) Tree() []models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Entry, len(s.tree))
	copy(out, s.tree)
	return out
}

// RootID returns the nominal root folder id seeded from the tree, empty if
// no tree has been loaded.
func (s *Store) RootID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootID
}

// FindPathIDs returns the root-to-target id path for a folder reachable in
// the loaded tree, found by depth-first search. The last element is the
// queried id and the first is a root-level folder. Returns nil when the id
// is not present; never a partial path.
func (s *Store) FindPathIDs(folderID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findPath(s.tree, folderID, nil)
}

func findPath(entries []models.Entry, target string, prefix []string) []string {
	for _, entry := range entries {
		if !entry.IsFolder() {
			continue
		}
		path := append(append([]string{}, prefix...), entry.ID)
		if entry.ID == target {
			return path
		}
		if found := findPath(entry.Children, target, path); found != nil {
			return found
		}
	}
	return nil
}

// FetchChildrenFor loads a folder's direct children into the cache for the
// given view. Grid expansion additionally fetches each child folder's own
// counts for badge display. The tree and grid caches are independent.
func (s *Store) FetchChildrenFor(ctx context.Context, parentID string, view View) ([]models.Entry, error) {
	listing, err := s.client.FolderContents(ctx, parentID, api.ListOptions{})
	if err != nil {
		return nil, err
	}
	children := listing.Entries

	var counts map[string]models.FolderCounts
	if view == ViewGrid {
		counts = make(map[string]models.FolderCounts)
		var countsMu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, child := range children {
			if !child.IsFolder() {
				continue
			}
			id := child.ID
			g.Go(func() error {
				c, err := s.client.FolderCounts(gctx, id)
				if err != nil {
					return err
				}
				countsMu.Lock()
				counts[id] = *c
				countsMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	switch view {
	case ViewTree:
		s.treeChildren[parentID] = children
	case ViewGrid:
		s.gridChildren[parentID] = children
		for id, c := range counts {
			s.gridCounts[id] = c
		}
	}
	s.mergeMetaLocked(children)
	s.mu.Unlock()

	s.publish(events.TreeChangedEvent{BaseEvent: base(events.EventTreeChanged)})
	return children, nil
}

// Children returns the cached children for a parent in the given view.
func (s *Store) Children(parentID string, view View) ([]models.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cache := s.treeChildren
	if view == ViewGrid {
		cache = s.gridChildren
	}
	children, ok := cache[parentID]
	if !ok {
		return nil, false
	}
	out := make([]models.Entry, len(children))
	copy(out, children)
	return out, true
}

// ChildCounts returns the cached badge counts for a folder in grid view.
func (s *Store) ChildCounts(folderID string) (models.FolderCounts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts, ok := s.gridCounts[folderID]
	return counts, ok
}

// ExpandFolder marks a folder expanded in the given view and fetches its
// children if they are not cached yet.
func (s *Store) ExpandFolder(ctx context.Context, folderID string, view View) error {
	s.mu.Lock()
	expanded := s.expandedSetLocked(view)
	cache := s.treeChildren
	if view == ViewGrid {
		cache = s.gridChildren
	}
	expanded[folderID] = true
	_, cached := cache[folderID]
	s.mu.Unlock()

	if cached {
		s.publish(events.TreeChangedEvent{BaseEvent: base(events.EventTreeChanged)})
		return nil
	}
	_, err := s.FetchChildrenFor(ctx, folderID, view)
	return err
}

// IsExpanded reports whether a folder is expanded in the given view.
func (s *Store) IsExpanded(folderID string, view View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expandedSetLocked(view)[folderID]
}

func (s *Store) expandedSetLocked(view View) map[string]bool {
	if view == ViewGrid {
		return s.expandedGrid
	}
	return s.expandedTree
}

// RevealFolderInTree expands every ancestor on the root-to-target path in
// the sidebar tree, fetching children as needed, and sets the breadcrumb
// from the resolved name chain. An id not present in the loaded tree is a
// no-op.
func (s *Store) RevealFolderInTree(ctx context.Context, folderID string) error {
	return s.revealFolder(ctx, folderID, ViewTree, false)
}

// RevealFolderInMain does the same for the inline grid and additionally
// makes the target the active folder.
func (s *Store) RevealFolderInMain(ctx context.Context, folderID string) error {
	return s.revealFolder(ctx, folderID, ViewGrid, true)
}

func (s *Store) revealFolder(ctx context.Context, folderID string, view View, activate bool) error {
	path := s.FindPathIDs(folderID)
	if path == nil {
		log.Debug().Msgf("reveal: folder %s not in loaded tree", folderID)
		return nil
	}

	for _, id := range path {
		if s.IsExpanded(id, view) {
			continue
		}
		if err := s.ExpandFolder(ctx, id, view); err != nil {
			return err
		}
	}

	s.mu.Lock()
	names := make([]string, 0, len(path))
	for _, id := range path {
		if meta, ok := s.meta[id]; ok {
			names = append(names, meta.Name)
		}
	}
	s.path = append([]string{RootLabel}, names...)
	s.pathIDs = path
	if activate {
		id := folderID
		s.folderID = &id
	}
	pathCopy := make([]string, len(s.path))
	copy(pathCopy, s.path)
	s.mu.Unlock()

	s.publish(events.PathChangedEvent{BaseEvent: base(events.EventPathChanged), FolderID: folderID, Path: pathCopy})
	return nil
}

// CollapseFolderInTree closes a folder and every expanded descendant in the
// sidebar tree. A selection inside the collapsed subtree moves to the
// collapsed folder's own parent.
func (s *Store) CollapseFolderInTree(folderID string) {
	s.collapseFolder(folderID, ViewTree)
}

// CollapseFolderInMain does the same for the inline grid.
func (s *Store) CollapseFolderInMain(folderID string) {
	s.collapseFolder(folderID, ViewGrid)
}

func (s *Store) collapseFolder(folderID string, view View) {
	s.mu.Lock()
	expanded := s.expandedSetLocked(view)
	for id := range expanded {
		if s.inSubtreeLocked(id, folderID) {
			delete(expanded, id)
		}
	}
	delete(expanded, folderID)

	var pathEvent *events.PathChangedEvent
	if s.folderID != nil && s.inSubtreeLocked(*s.folderID, folderID) {
		parent := s.parentOfLocked(folderID)
		s.folderID = parent
		s.path = s.breadcrumbForLocked(parent)
		pathCopy := make([]string, len(s.path))
		copy(pathCopy, s.path)
		pathEvent = &events.PathChangedEvent{BaseEvent: base(events.EventPathChanged), FolderID: folderKey(parent), Path: pathCopy}
	}
	s.mu.Unlock()

	s.publish(events.TreeChangedEvent{BaseEvent: base(events.EventTreeChanged)})
	if pathEvent != nil {
		s.publish(*pathEvent)
	}
}

// inSubtreeLocked reports whether id equals ancestor or descends from it,
// walking the flattened parent chain. Iteration is bounded to tolerate
// malformed or cyclic metadata. Must hold the lock.
func (s *Store) inSubtreeLocked(id, ancestor string) bool {
	current := id
	for i := 0; i < constants.MaxAncestorWalk; i++ {
		if current == ancestor {
			return true
		}
		meta, ok := s.meta[current]
		if !ok || meta.ParentID == nil {
			return false
		}
		current = *meta.ParentID
	}
	log.Warn().Msgf("ancestor walk exceeded %d steps at folder %s", constants.MaxAncestorWalk, id)
	return false
}

// parentOfLocked returns a folder's parent id, nil for a top-level folder
// or an id with no metadata. Must hold the lock.
func (s *Store) parentOfLocked(folderID string) *string {
	meta, ok := s.meta[folderID]
	if !ok {
		return nil
	}
	return meta.ParentID
}

// breadcrumbForLocked rebuilds the breadcrumb for a folder from FolderMeta,
// bounded against cyclic metadata. Must hold the lock.
func (s *Store) breadcrumbForLocked(folderID *string) []string {
	if folderID == nil {
		return []string{RootLabel}
	}

	var names []string
	current := *folderID
	for i := 0; i < constants.MaxAncestorWalk; i++ {
		meta, ok := s.meta[current]
		if !ok {
			break
		}
		names = append([]string{meta.Name}, names...)
		if meta.ParentID == nil {
			break
		}
		current = *meta.ParentID
	}
	return append([]string{RootLabel}, names...)
}

// OptimisticAddChild appends a newly created entry to the grid children
// cache, the current listing when the parent is active, and the
// root-with-counts cache when the parent is the root. Applied before the
// authoritative refetch so the change shows immediately.
func (s *Store) OptimisticAddChild(entry models.Entry) {
	s.mu.Lock()
	parent := folderKey(entry.ParentID)
	if parent != "" {
		s.gridChildren[parent] = append(s.gridChildren[parent], entry)
	}
	if folderKey(s.folderID) == parent {
		s.entries = append(s.entries, entry)
		s.total++
	}
	if entry.ParentID == nil || (s.rootID != "" && parent == s.rootID) {
		s.rootWithCounts = append(s.rootWithCounts, models.FolderWithCounts{Entry: entry})
	}
	s.mergeMetaLocked([]models.Entry{entry})
	key := folderKey(s.folderID)
	total := s.total
	count := len(s.entries)
	s.mu.Unlock()

	s.publish(events.ListingChangedEvent{BaseEvent: base(events.EventListingChanged), FolderID: key, Total: total, Count: count})
}

// OptimisticAddTreeChild appends a newly created entry to the tree children
// cache.
func (s *Store) OptimisticAddTreeChild(entry models.Entry) {
	s.mu.Lock()
	parent := folderKey(entry.ParentID)
	if parent != "" {
		s.treeChildren[parent] = append(s.treeChildren[parent], entry)
	}
	s.mergeMetaLocked([]models.Entry{entry})
	s.mu.Unlock()

	s.publish(events.TreeChangedEvent{BaseEvent: base(events.EventTreeChanged)})
}

// OptimisticRemoveChild removes an entry from the grid children cache, the
// current listing, and the root-with-counts cache, immediately on delete.
func (s *Store) OptimisticRemoveChild(entryID, parentID string) {
	s.mu.Lock()
	if parentID != "" {
		s.gridChildren[parentID] = removeEntry(s.gridChildren[parentID], entryID)
	}
	before := len(s.entries)
	s.entries = removeEntry(s.entries, entryID)
	if len(s.entries) < before && s.total > 0 {
		s.total--
	}
	for i, root := range s.rootWithCounts {
		if root.ID == entryID {
			s.rootWithCounts = append(s.rootWithCounts[:i], s.rootWithCounts[i+1:]...)
			break
		}
	}
	key := folderKey(s.folderID)
	total := s.total
	count := len(s.entries)
	s.mu.Unlock()

	s.publish(events.ListingChangedEvent{BaseEvent: base(events.EventListingChanged), FolderID: key, Total: total, Count: count})
}

// OptimisticRemoveTreeChild removes an entry from the tree children cache.
func (s *Store) OptimisticRemoveTreeChild(entryID, parentID string) {
	s.mu.Lock()
	if parentID != "" {
		s.treeChildren[parentID] = removeEntry(s.treeChildren[parentID], entryID)
	}
	s.mu.Unlock()

	s.publish(events.TreeChangedEvent{BaseEvent: base(events.EventTreeChanged)})
}

func removeEntry(entries []models.Entry, id string) []models.Entry {
	for i, entry := range entries {
		if entry.ID == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// AdjustFolderCounts patches a folder's displayed child-count badges
// wherever it currently appears, clamped at zero.
func (s *Store) AdjustFolderCounts(folderID string, dFolders, dFiles int) {
	s.mu.Lock()
	for i, root := range s.rootWithCounts {
		if root.ID == folderID {
			s.rootWithCounts[i].Counts = clampCounts(root.Counts, dFolders, dFiles)
		}
	}
	if counts, ok := s.gridCounts[folderID]; ok {
		s.gridCounts[folderID] = clampCounts(counts, dFolders, dFiles)
	}
	s.mu.Unlock()

	s.publish(events.TreeChangedEvent{BaseEvent: base(events.EventTreeChanged)})
}

func clampCounts(c models.FolderCounts, dFolders, dFiles int) models.FolderCounts {
	c.Folders += dFolders
	c.Files += dFiles
	if c.Folders < 0 {
		c.Folders = 0
	}
	if c.Files < 0 {
		c.Files = 0
	}
	return c
}
