// Package cli provides the unified search command.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canopy-fm/canopy/internal/state"
	"github.com/canopy-fm/canopy/internal/util/filter"
	"github.com/canopy-fm/canopy/internal/util/format"
)

// newSearchCmd creates the 'search' command.
func newSearchCmd() *cobra.Command {
	var (
		nameFilter string
		descFilter string
		fromDate   string
		toDate     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search folders and files",
		Long: `Run a combined folder and file search. Extra criteria narrow the
query server-side.

Example:
  canopy search budget --from 2026-01-01 --name xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, bus, err := getStore()
			if err != nil {
				return err
			}
			defer bus.Close()
			defer store.Close()

			ctx := GetContext()

			from, err := parseDate(fromDate)
			if err != nil {
				return err
			}
			to, err := parseDate(toDate)
			if err != nil {
				return err
			}
			if nameFilter != "" || descFilter != "" || from != nil || to != nil {
				store.ApplyFilters(filter.Criteria{
					Name:        nameFilter,
					Description: descFilter,
					From:        from,
					To:          to,
				})
			}

			// Load the tree first so matches can be shown with their path.
			if err := store.FetchFolderTree(ctx); err != nil {
				GetLogger().Warn().Msgf("tree unavailable, paths omitted: %v", err)
			}
			if err := store.RunUnifiedSearch(ctx, args[0]); err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			entries := store.Entries()
			if len(entries) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			filter.Sort(entries, "name", true)
			for _, entry := range entries {
				kind := "file"
				if entry.IsFolder() {
					kind = "folder"
				}
				fmt.Printf("%-6s  %s  %-14s  %s\n", kind, entry.ID,
					format.RelativeDate(entry.ModifiedAt), pathFor(store, entry.ID, entry.Name))
			}
			fmt.Printf("\n%d total\n", store.Total())
			return nil
		},
	}

	cmd.Flags().StringVar(&nameFilter, "name", "", "Name substring criterion")
	cmd.Flags().StringVar(&descFilter, "description", "", "Description substring criterion")
	cmd.Flags().StringVar(&fromDate, "from", "", "Modified on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toDate, "to", "", "Modified on or before (YYYY-MM-DD)")

	return cmd
}

// pathFor renders an entry's location using the loaded tree, falling back
// to the bare name when the entry is not reachable in it.
func pathFor(store *state.Store, id, name string) string {
	path := store.FindPathIDs(id)
	if path == nil {
		return name
	}
	segments := make([]string, 0, len(path))
	for _, folderID := range path {
		if meta, ok := store.Meta(folderID); ok {
			segments = append(segments, meta.Name)
		}
	}
	if len(segments) == 0 {
		return name
	}
	return strings.Join(segments, "/")
}
