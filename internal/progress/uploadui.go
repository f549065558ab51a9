package progress

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// UploadUI manages one progress bar per concurrent upload using mpb. The
// bars are driven by server-pushed progress percentages, not local byte
// counts: the transfer call and the progress stream are independent.
type UploadUI struct {
	progress   *mpb.Progress
	bars       sync.Map // task id -> *FileBar
	isTerminal bool
	totalFiles int
	started    int32
	completed  int32
}

// FileBar is the handle for a single upload's progress bar.
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	fileName   string
	folderPath string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUI creates an upload UI for the given number of files. Without a
// terminal on stderr the bars are disabled and plain text is printed.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a progress bar for one upload. folderPath is the
// human-readable destination shown in the label.
func (u *UploadUI) AddFileBar(taskID, fileName, folderPath string, size int64) *FileBar {
	index := int(atomic.AddInt32(&u.started, 1))

	fb := &FileBar{
		ui:         u,
		index:      index,
		fileName:   fileName,
		folderPath: folderPath,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("[%d/%d] %s (%.1f MiB) → %s",
						fb.index, u.totalFiles,
						fileName,
						float64(size)/(1024*1024),
						folderPath)
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Printf("Uploading [%d/%d]: %s (%.1f MiB) → %s\n",
			index, u.totalFiles, fileName, float64(size)/(1024*1024), folderPath)
	}

	u.bars.Store(taskID, fb)
	return fb
}

// Bar returns the bar registered for a task id.
func (u *UploadUI) Bar(taskID string) (*FileBar, bool) {
	if v, ok := u.bars.Load(taskID); ok {
		return v.(*FileBar), true
	}
	return nil, false
}

// SetPercent moves the bar to a server-reported percentage (0..100).
// Updates are throttled; EwmaIncrBy is still fed elapsed time on every
// throttled tick so speed stays accurate through stalls.
func (f *FileBar) SetPercent(percent int) {
	if f.bar == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	const updateInterval = 300 * time.Millisecond
	if elapsed < updateInterval {
		return
	}

	currentBytes := f.size * int64(percent) / 100
	f.bar.EwmaIncrBy(int(currentBytes-f.lastBytes), elapsed)
	f.lastBytes = currentBytes
	f.lastUpdate = now
}

// Complete finishes the bar and prints a one-line summary above the bars.
func (f *FileBar) Complete(fileID string, err error) {
	elapsed := time.Since(f.startTime)

	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		msg := fmt.Sprintf("✓ %s → %s (%.1f MiB, %s)",
			f.fileName, f.folderPath, float64(f.size)/(1024*1024), elapsed.Round(time.Second))
		if fileID != "" {
			msg += fmt.Sprintf(" id=%s", fileID)
		}
		f.write(msg + "\n")
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		f.write(fmt.Sprintf("✗ %s → %s: %v\n", f.fileName, f.folderPath, err))
	}

	atomic.AddInt32(&f.ui.completed, 1)
}

// write emits a line through mpb's writer so it lands above the live bars.
func (f *FileBar) write(msg string) {
	if f.ui.isTerminal && f.ui.progress != nil {
		f.ui.progress.Write([]byte(msg))
	} else {
		fmt.Print(msg)
	}
}

// Wait blocks until all bars complete.
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// IsTerminal reports whether progress bars are active.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows so the
// bars render with ANSI sequences. A no-op elsewhere.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
