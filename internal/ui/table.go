package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders left-aligned columns separated by spacing, without borders.
// Cells are plain text; per-column styles are applied at render time so
// widths are measured on what the reader sees.
type Table struct {
	rows       [][]string
	colWidths  []int
	styles     []*lipgloss.Style
	colPadding int
	maxWidth   int
}

// NewTable creates a new table with the specified number of columns
func NewTable(cols int) *Table {
	return &Table{
		colWidths:  make([]int, cols),
		styles:     make([]*lipgloss.Style, cols),
		colPadding: 2,
	}
}

// SetStyle styles every cell of column col.
func (t *Table) SetStyle(col int, style lipgloss.Style) {
	if col >= 0 && col < len(t.styles) {
		t.styles[col] = &style
	}
}

// SetMaxWidth truncates the last column so rows fit in width. Zero
// disables truncation.
func (t *Table) SetMaxWidth(width int) {
	t.maxWidth = width
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.colWidths))
	for i := 0; i < len(t.colWidths) && i < len(cells); i++ {
		row[i] = cells[i]
		if w := lipgloss.Width(cells[i]); w > t.colWidths[i] {
			t.colWidths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// String renders the table as a string
func (t *Table) String() string {
	if len(t.rows) == 0 {
		return ""
	}

	last := len(t.colWidths) - 1
	lastWidth := 0
	if t.maxWidth > 0 {
		lastWidth = t.maxWidth
		for i := 0; i < last; i++ {
			lastWidth -= t.colWidths[i] + t.colPadding
		}
		if lastWidth < 1 {
			lastWidth = 1
		}
	}

	var sb strings.Builder
	padding := strings.Repeat(" ", t.colPadding)
	for _, row := range t.rows {
		for i, cell := range row {
			if i > 0 {
				sb.WriteString(padding)
			}
			if i == last {
				if lastWidth > 0 {
					cell = Truncate(cell, lastWidth)
				}
				sb.WriteString(t.render(i, cell))
				continue
			}
			sb.WriteString(t.render(i, cell))
			sb.WriteString(strings.Repeat(" ", t.colWidths[i]-lipgloss.Width(cell)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Table) render(col int, cell string) string {
	if s := t.styles[col]; s != nil && cell != "" {
		return s.Render(cell)
	}
	return cell
}

// Truncate shortens s to at most width cells, marking the cut with "…".
func Truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 1 {
		return "…"
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
