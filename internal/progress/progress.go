// Package progress provides terminal progress reporting: a single-bar
// reporter for downloads and an mpb-based multi-bar UI for concurrent
// uploads driven by server-pushed progress.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter is the interface for reporting the progress of one transfer.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// CLIProgress reports progress with a single progress bar on stderr.
type CLIProgress struct {
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a new CLI progress reporter.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{}
}

// Start initializes the progress bar with total size and description.
func (p *CLIProgress) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the progress bar to the current position.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message below the bar.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}
}

// NoOpProgress is a reporter that does nothing, for silent operations.
type NoOpProgress struct{}

func (NoOpProgress) Start(total int64, description string) {}
func (NoOpProgress) Update(current int64)                  {}
func (NoOpProgress) Finish()                               {}
func (NoOpProgress) Error(err error)                       {}

// Reader wraps an io.Reader and reports bytes read to a Reporter. Used for
// downloads, where progress is observed locally rather than pushed by the
// server.
type Reader struct {
	reader   io.Reader
	reporter Reporter
	current  int64
}

// NewReader creates a progress-reporting reader.
func NewReader(r io.Reader, reporter Reporter) *Reader {
	return &Reader{reader: r, reporter: reporter}
}

// Read implements io.Reader with progress reporting.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.current += int64(n)
	r.reporter.Update(r.current)
	return n, err
}
