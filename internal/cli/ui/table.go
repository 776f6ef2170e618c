package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows in aligned columns under a colored header
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table writing to w
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{w: w, headers: headers, noColor: noColor}
}

// AddRow appends a row. Missing cells render empty, extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	head := t.color(color.Bold, color.FgCyan)
	rule := t.color(color.FgHiBlack)

	t.line(widths, t.headers, head)
	seps := make([]string, len(widths))
	for i, n := range widths {
		seps[i] = strings.Repeat("─", n)
	}
	t.line(widths, seps, rule)
	for _, row := range t.rows {
		t.line(widths, row, nil)
	}
}

func (t *Table) line(widths []int, cells []string, c *color.Color) {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		if i == len(cells)-1 {
			b.WriteString(cell)
		} else {
			b.WriteString(padRight(cell, widths[i]))
		}
	}
	s := strings.TrimRight(b.String(), " ")
	if c != nil {
		c.Fprintln(t.w, s)
		return
	}
	fmt.Fprintln(t.w, s)
}

func (t *Table) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// Header writes a bold title followed by a rule of the same width
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		gray.DisableColor()
	}
	bold.Fprintln(w, title)
	gray.Fprintln(w, strings.Repeat("─", utf8.RuneCountInString(title)))
}

// KeyValue writes aligned "key: value" lines in the given order
func KeyValue(w io.Writer, pairs [][2]string, noColor bool) {
	width := 0
	for _, p := range pairs {
		if n := utf8.RuneCountInString(p[0]); n > width {
			width = n
		}
	}
	key := color.New(color.FgCyan)
	if noColor {
		key.DisableColor()
	}
	for _, p := range pairs {
		key.Fprint(w, padRight(p[0]+":", width+1))
		fmt.Fprintf(w, " %s\n", p[1])
	}
}
