// Package cli provides the upload and download commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/canopy-fm/canopy/internal/api"
	"github.com/canopy-fm/canopy/internal/events"
	"github.com/canopy-fm/canopy/internal/models"
	"github.com/canopy-fm/canopy/internal/progress"
	"github.com/canopy-fm/canopy/internal/state"
	"github.com/canopy-fm/canopy/internal/util/format"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var folderID string

	cmd := &cobra.Command{
		Use:   "upload <files...>",
		Short: "Upload files",
		Long: `Upload one or more files, to the top level or into --folder.

Progress is pushed by the server per upload and rendered as one bar per
file. A server-side stall (timeout event) pauses the bar without failing
the upload.

Example:
  canopy upload report.pdf data.csv --folder 64b1f0a2c3d4e5f601234567`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var parent *string
			folderLabel := state.RootLabel
			if folderID != "" {
				if err := api.ValidateEntryID(folderID); err != nil {
					return err
				}
				parent = &folderID
				folderLabel = folderID
			}

			store, bus, err := getStore()
			if err != nil {
				return err
			}
			defer bus.Close()
			defer store.Close()

			ctx := GetContext()
			ui := progress.NewUploadUI(len(args))
			GetLogger().SetOutput(ui.Writer())

			progressed := bus.Subscribe(events.EventUploadProgress)
			completed := bus.Subscribe(events.EventUploadCompleted)
			failed := bus.Subscribe(events.EventUploadFailed)

			var openFiles []*os.File
			defer func() {
				for _, f := range openFiles {
					f.Close()
				}
			}()

			remaining := 0
			failures := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				info, err := f.Stat()
				if err != nil {
					f.Close()
					return fmt.Errorf("failed to stat %s: %w", path, err)
				}
				openFiles = append(openFiles, f)

				name := filepath.Base(path)
				if mt, err := format.DetectMime(f); err == nil {
					GetLogger().Debug().Str("file", name).Str("mime", mt).Msg("detected content type")
				}
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					return fmt.Errorf("failed to rewind %s: %w", path, err)
				}
				taskID, err := store.BeginUpload(ctx, name, info.Size(), parent, f)
				if err != nil {
					return fmt.Errorf("cannot upload %s: %w", name, err)
				}
				ui.AddFileBar(taskID, name, folderLabel, info.Size())
				remaining++
			}

			for remaining > 0 {
				select {
				case ev := <-progressed:
					up, ok := ev.(events.UploadEvent)
					if !ok {
						continue
					}
					if bar, found := ui.Bar(up.Task.ID); found && up.Task.Status == models.UploadUploading {
						bar.SetPercent(up.Task.Progress)
					}
				case ev := <-completed:
					up, ok := ev.(events.UploadEvent)
					if !ok {
						continue
					}
					if bar, found := ui.Bar(up.Task.ID); found {
						bar.Complete("", nil)
					}
					remaining--
				case ev := <-failed:
					up, ok := ev.(events.UploadEvent)
					if !ok {
						continue
					}
					if bar, found := ui.Bar(up.Task.ID); found {
						bar.Complete("", fmt.Errorf("%s", up.Task.Err))
					}
					remaining--
					failures++
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			ui.Wait()
			GetLogger().SetOutput(os.Stderr)

			if failures > 0 {
				return fmt.Errorf("%d of %d uploads failed", failures, len(args))
			}
			fmt.Printf("✓ Uploaded %d file(s) to %s\n", len(args), folderLabel)
			return nil
		},
	}

	cmd.Flags().StringVar(&folderID, "folder", "", "Destination folder ID (default: top level)")
	return cmd
}

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <fileID>",
		Short: "Download a file",
		Long: `Download a file's content by id.

Example:
  canopy download 64b1f0a2c3d4e5f601234568 -o report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := args[0]
			if err := api.ValidateEntryID(fileID); err != nil {
				return err
			}

			client, err := getAPIClient()
			if err != nil {
				return err
			}

			body, size, err := client.Download(GetContext(), fileID)
			if err != nil {
				if api.IsNotFoundError(err) {
					return fmt.Errorf("file %s not found", fileID)
				}
				return fmt.Errorf("download failed: %w", err)
			}
			defer body.Close()

			if output == "" {
				output = fileID
			}
			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer out.Close()

			reporter := progress.NewCLIProgress()
			reporter.Start(size, filepath.Base(output))
			written, err := io.Copy(out, progress.NewReader(body, reporter))
			if err != nil {
				reporter.Error(err)
				return fmt.Errorf("download failed after %d bytes: %w", written, err)
			}
			reporter.Finish()

			fmt.Printf("✓ Downloaded %s (%d bytes)\n", output, written)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: the file id)")
	return cmd
}

// newWatchCmd creates the 'watch' command.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <folderID>",
		Short: "Tail a folder's change notifications",
		Long: `Subscribe to a folder's server-push change stream and print each
notification. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID := args[0]
			if err := api.ValidateEntryID(folderID); err != nil {
				return err
			}

			store, bus, err := getStore()
			if err != nil {
				return err
			}
			defer bus.Close()
			defer store.Close()

			ctx := GetContext()
			notices := bus.Subscribe(events.EventFolderNotify)

			stop, err := store.WatchFolder(ctx, folderID)
			if err != nil {
				return fmt.Errorf("failed to watch folder: %w", err)
			}
			defer stop()

			fmt.Printf("Watching folder %s (Ctrl+C to stop)\n", folderID)
			for {
				select {
				case ev := <-notices:
					notify, ok := ev.(events.FolderNotifyEvent)
					if !ok {
						continue
					}
					fmt.Printf("%s  %s  entry=%s\n",
						notify.Timestamp().Format("15:04:05"),
						notify.Notice.Action, notify.Notice.EntryID)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	return cmd
}
