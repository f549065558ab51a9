// Package models defines the wire and in-memory types shared between the
// API client and the state store.
package models

import "time"

// EntryType discriminates the two halves of the FileSystemEntry union.
type EntryType string

const (
	EntryTypeFolder EntryType = "folder"
	EntryTypeFile   EntryType = "file"
)

// Entry represents a folder or file as returned by the backend.
// Folder entries may carry Children when fetched as a tree; file entries
// carry the file-only fields. ParentID == nil marks a top-level folder.
type Entry struct {
	ID          string    `json:"id"`
	Type        EntryType `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *string   `json:"parentId"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`

	// Folder-only
	Children []Entry `json:"children,omitempty"`

	// File-only
	OriginalName string `json:"originalName,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
	ViewURL      string `json:"viewUrl,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (e *Entry) IsFolder() bool { return e.Type == EntryTypeFolder }

// IsRoot reports whether the entry is a top-level folder.
func (e *Entry) IsRoot() bool { return e.ParentID == nil }

// FolderMetaEntry is the flattened per-folder record derived from the tree.
// It lets the store reconstruct a breadcrumb for any folder id without
// re-traversing the tree.
type FolderMetaEntry struct {
	Name     string
	ParentID *string
}

// FolderMeta maps folder id to its flattened metadata. It is merged, never
// replaced, whenever tree or listing data arrives.
type FolderMeta map[string]FolderMetaEntry

// Merge folds other into m, overwriting ids present in both.
func (m FolderMeta) Merge(other FolderMeta) {
	for id, meta := range other {
		m[id] = meta
	}
}

// FolderCounts holds a folder's direct child counts for badge display.
type FolderCounts struct {
	Folders int `json:"folders"`
	Files   int `json:"files"`
}

// AggregateCounts holds the backend-wide totals.
type AggregateCounts struct {
	TotalFolders int `json:"totalFolders"`
	TotalFiles   int `json:"totalFiles"`
}

// FolderWithCounts pairs a root folder with its direct child counts.
type FolderWithCounts struct {
	Entry
	Counts FolderCounts
}

// Listing is a paginated slice of entries plus the authoritative total.
type Listing struct {
	Entries []Entry `json:"results"`
	Total   int     `json:"total"`
}

// Breadcrumb is the ordered name chain from a root folder down to a target.
type Breadcrumb struct {
	IDs   []string
	Names []string
}

// SearchParams are the server-side unified search criteria.
type SearchParams struct {
	Query       string
	Name        string
	Description string
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}
