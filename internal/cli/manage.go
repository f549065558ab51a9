// Package cli provides mutation commands: mkdir, rm, rename, mv.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/validation"
)

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	var (
		parentID    string
		description string
	)

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Long: `Create a folder, at the top level or under --parent.

Example:
  canopy mkdir "Projects"
  canopy mkdir "Q3 Reports" --parent 64b1f0a2c3d4e5f601234567`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validation.ValidateEntryName(name); err != nil {
				return err
			}

			client, err := getAPIClient()
			if err != nil {
				return err
			}

			req := api.CreateFolderRequest{Name: name, Description: description}
			if parentID != "" {
				if err := api.ValidateEntryID(parentID); err != nil {
					return err
				}
				req.ParentID = &parentID
			}

			entry, err := client.CreateFolder(GetContext(), req)
			if err != nil {
				if api.IsConflictError(err) {
					return fmt.Errorf("a folder named %q already exists here", name)
				}
				return fmt.Errorf("failed to create folder: %w", err)
			}

			GetLogger().Info().Str("folder_id", entry.ID).Msg("Folder created")
			fmt.Printf("✓ Folder created\n  Name: %s\n  ID: %s\n", entry.Name, entry.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", "", "Parent folder ID (default: top level)")
	cmd.Flags().StringVar(&description, "description", "", "Folder description")

	return cmd
}

// newRmCmd creates the 'rm' command.
func newRmCmd() *cobra.Command {
	var (
		isFile bool
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a folder or file",
		Long: `Delete a folder (and everything in it) or, with --file, a single file.

Example:
  canopy rm 64b1f0a2c3d4e5f601234567
  canopy rm 64b1f0a2c3d4e5f601234568 --file --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := api.ValidateEntryID(id); err != nil {
				return err
			}

			kind := "folder"
			if isFile {
				kind = "file"
			}
			if !yes {
				ok, err := promptConfirm(fmt.Sprintf("Delete %s %s? This cannot be undone.", kind, id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			client, err := getAPIClient()
			if err != nil {
				return err
			}

			ctx := GetContext()
			if isFile {
				err = client.DeleteFile(ctx, id)
			} else {
				err = client.DeleteFolder(ctx, id)
			}
			if err != nil {
				if api.IsNotFoundError(err) {
					return fmt.Errorf("%s %s not found", kind, id)
				}
				return fmt.Errorf("failed to delete %s: %w", kind, err)
			}

			fmt.Printf("✓ Deleted %s %s\n", kind, id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&isFile, "file", false, "Treat the id as a file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// newRenameCmd creates the 'rename' command.
func newRenameCmd() *cobra.Command {
	var (
		isFile      bool
		description string
	)

	cmd := &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Rename a folder or file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, name := args[0], args[1]
			if err := api.ValidateEntryID(id); err != nil {
				return err
			}
			if err := validation.ValidateEntryName(name); err != nil {
				return err
			}

			client, err := getAPIClient()
			if err != nil {
				return err
			}

			req := api.UpdateRequest{Name: &name}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}

			ctx := GetContext()
			var updated error
			if isFile {
				_, updated = client.UpdateFile(ctx, id, req)
			} else {
				_, updated = client.UpdateFolder(ctx, id, req)
			}
			if updated != nil {
				if api.IsConflictError(updated) {
					return fmt.Errorf("the name %q is already taken here", name)
				}
				if api.IsNotFoundError(updated) {
					return fmt.Errorf("entry %s not found", id)
				}
				return fmt.Errorf("failed to rename: %w", updated)
			}

			fmt.Printf("✓ Renamed %s to %q\n", id, name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&isFile, "file", false, "Treat the id as a file")
	cmd.Flags().StringVar(&description, "description", "", "Replace the description as well")

	return cmd
}

// newMvCmd creates the 'mv' command.
func newMvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv <fileID> <folderID>",
		Short: "Move a file into a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, folderID := args[0], args[1]
			if err := api.ValidateEntryID(fileID); err != nil {
				return err
			}
			if err := api.ValidateEntryID(folderID); err != nil {
				return err
			}

			client, err := getAPIClient()
			if err != nil {
				return err
			}

			entry, err := client.MoveFile(GetContext(), fileID, folderID)
			if err != nil {
				if api.IsNotFoundError(err) {
					return fmt.Errorf("file or folder not found")
				}
				return fmt.Errorf("failed to move file: %w", err)
			}

			fmt.Printf("✓ Moved %s into %s\n", entry.Name, folderID)
			return nil
		},
	}
	return cmd
}
