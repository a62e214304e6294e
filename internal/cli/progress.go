package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Progress wraps a terminal progress bar.
type Progress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewProgress creates a progress bar for total steps labeled with description.
func NewProgress(writer io.Writer, total int, description string) *Progress {
	if writer == nil {
		writer = os.Stderr
	}
	p := &Progress{writer: writer}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan][bold]%s[reset]", description)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// Set moves the bar to done steps.
func (p *Progress) Set(done int) {
	if err := p.bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Describe changes the label shown next to the bar.
func (p *Progress) Describe(description string) {
	p.bar.Describe(fmt.Sprintf("[cyan][bold]%s[reset]", description))
}

// Finish completes the bar.
func (p *Progress) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}

// Steps reports a done/total callback onto the bar.
func (p *Progress) Steps() func(done, total int) {
	return func(done, _ int) {
		p.Set(done)
	}
}
