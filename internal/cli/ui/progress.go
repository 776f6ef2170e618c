package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar draws a single-line bar that is redrawn in place
type ProgressBar struct {
	mu      sync.Mutex
	w       io.Writer
	width   int
	noColor bool
	last    int
	done    bool
}

// NewProgressBar creates a bar of the given width; zero means 30 cells
func NewProgressBar(w io.Writer, width int, noColor bool) *ProgressBar {
	if width <= 0 {
		width = 30
	}
	return &ProgressBar{w: w, width: width, noColor: noColor, last: -1}
}

// Update redraws the bar for current out of total. It matches the
// progress callback of the deployment loader.
func (p *ProgressBar) Update(current, total int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done || total <= 0 {
		return
	}
	if current > total {
		current = total
	}
	if current < 0 {
		current = 0
	}
	filled := p.width * current / total

	fill := color.New(color.FgCyan)
	rest := color.New(color.FgHiBlack)
	if p.noColor {
		fill.DisableColor()
		rest.DisableColor()
	}

	var b strings.Builder
	b.WriteString("\r[")
	fill.Fprint(&b, strings.Repeat("█", filled))
	rest.Fprint(&b, strings.Repeat("░", p.width-filled))
	fmt.Fprintf(&b, "] %3d%%", 100*current/total)
	if message != "" {
		b.WriteString(" " + message)
	}
	// clear leftovers of a longer previous message
	b.WriteString("\x1b[K")
	io.WriteString(p.w, b.String())
	p.last = current
}

// Finish ends the line if the bar was drawn at all
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}
	p.done = true
	if p.last >= 0 {
		fmt.Fprintln(p.w)
	}
}
