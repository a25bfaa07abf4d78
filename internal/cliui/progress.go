package cliui

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressBar renders the scheduler's piece-completion stream as a live bar,
// replacing the teacher's hand-rolled strings.Repeat bar with the real
// widget its go.mod already declared.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar builds a bar over total pieces, labeled with name. Width is
// derived from the controlling terminal when stdout is one; non-terminal
// output (redirected to a file, piped) falls back to progressbar's default.
func NewProgressBar(name string, totalPieces int) *ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(fmt.Sprintf("downloading %s", name)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pieces"),
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		opts = append(opts, progressbar.OptionSetWidth(width/2))
	}

	return &ProgressBar{bar: progressbar.NewOptions(totalPieces, opts...)}
}

// Add advances the bar by the given number of completed pieces.
func (p *ProgressBar) Add(pieces int) {
	p.bar.Add(pieces)
}

// Finish marks the bar complete and moves the cursor past it.
func (p *ProgressBar) Finish() {
	p.bar.Finish()
	fmt.Println()
}
