// Package cli provides browse commands: ls, tree, counts.
package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/models"
	"github.com/canopy-fm/canopy/internal/state"
	"github.com/canopy-fm/canopy/internal/util/filter"
	"github.com/canopy-fm/canopy/internal/util/format"
)

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	var (
		page       int
		pageSize   int
		sortBy     string
		desc       bool
		nameFilter string
		descFilter string
	)

	cmd := &cobra.Command{
		Use:   "ls [folderID]",
		Short: "List the root folders or a folder's contents",
		Long: `List the top-level folders, or the contents of a folder by id.

Example:
  # Landing listing: root folders with child counts
  canopy ls

  # Contents of a folder, sorted by size
  canopy ls 64b1f0a2c3d4e5f601234567 --sort size --desc`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, bus, err := getStore()
			if err != nil {
				return err
			}
			defer bus.Close()
			defer store.Close()

			ctx := GetContext()

			if len(args) == 1 {
				folderID := args[0]
				if err := api.ValidateEntryID(folderID); err != nil {
					return err
				}
				segments := []string{folderID}
				if crumb, err := store.Client().Breadcrumb(ctx, folderID); err == nil {
					segments = crumb.Names
				}
				store.NavigateToPath(segments, &folderID)
			}
			store.SetSort(sortBy, !desc)
			store.SetPage(page)
			if pageSize > 0 {
				store.SetPageSize(pageSize)
			}
			if nameFilter != "" || descFilter != "" {
				store.ApplyFilters(filter.Criteria{Name: nameFilter, Description: descFilter})
			}

			if err := store.FetchListing(ctx); err != nil {
				return fmt.Errorf("failed to list: %w", err)
			}

			if roots := store.RootListing(); len(roots) > 0 {
				printRootListing(roots)
			} else {
				_, path := store.CurrentFolder()
				fmt.Println(strings.Join(path, " / "))
				printListing(store.Entries())
			}
			fmt.Printf("\n%d total\n", store.Total())
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Entries per page (default from config)")
	cmd.Flags().StringVar(&sortBy, "sort", "name", "Sort key: name, size, date")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().StringVar(&nameFilter, "name", "", "Filter by name substring")
	cmd.Flags().StringVar(&descFilter, "description", "", "Filter by description substring")

	return cmd
}

func printRootListing(roots []models.FolderWithCounts) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFOLDERS\tFILES\tMODIFIED\tID")
	for _, root := range roots {
		fmt.Fprintf(w, "%s/\t%d\t%d\t%s\t%s\n",
			root.Name, root.Counts.Folders, root.Counts.Files,
			format.Date(root.ModifiedAt), root.ID)
	}
	w.Flush()
}

func printListing(entries []models.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tNAME\tSIZE\tMODIFIED\tID")
	for _, entry := range entries {
		if entry.IsFolder() {
			fmt.Fprintf(w, "folder\t%s/\t-\t%s\t%s\n",
				entry.Name, format.Date(entry.ModifiedAt), entry.ID)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			format.Classify(entry.Name, entry.MimeType), entry.Name,
			format.Size(entry.SizeBytes), format.Date(entry.ModifiedAt), entry.ID)
	}
	w.Flush()
}

// newTreeCmd creates the 'tree' command.
func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the full folder tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, bus, err := getStore()
			if err != nil {
				return err
			}
			defer bus.Close()
			defer store.Close()

			if err := store.FetchFolderTree(GetContext()); err != nil {
				return fmt.Errorf("failed to fetch tree: %w", err)
			}

			fmt.Println(state.RootLabel)
			printTree(store.Tree(), "")
			return nil
		},
	}
	return cmd
}

func printTree(entries []models.Entry, indent string) {
	for i, entry := range entries {
		if !entry.IsFolder() {
			continue
		}
		connector := "├── "
		childIndent := indent + "│   "
		if i == len(entries)-1 {
			connector = "└── "
			childIndent = indent + "    "
		}
		fmt.Printf("%s%s%s  (%s)\n", indent, connector, entry.Name, entry.ID)
		printTree(entry.Children, childIndent)
	}
}

// newCountsCmd creates the 'counts' command.
func newCountsCmd() *cobra.Command {
	var folderID string

	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show folder and file totals",
		Long: `Show the backend-wide folder and file totals, or one folder's direct
child counts with --folder.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := GetContext()

			if folderID != "" {
				counts, err := client.FolderCounts(ctx, folderID)
				if err != nil {
					return fmt.Errorf("failed to fetch folder counts: %w", err)
				}
				fmt.Printf("Folders: %d\nFiles:   %d\n", counts.Folders, counts.Files)
				return nil
			}

			counts, err := client.AggregateCounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch counts: %w", err)
			}
			fmt.Printf("Total folders: %d\nTotal files:   %d\n", counts.TotalFolders, counts.TotalFiles)
			return nil
		},
	}

	cmd.Flags().StringVar(&folderID, "folder", "", "Folder ID for direct child counts")
	return cmd
}

// parseDate parses a YYYY-MM-DD flag value.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", value)
	}
	return &t, nil
}
