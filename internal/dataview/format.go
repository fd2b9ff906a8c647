package dataview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// FormatValue renders a field value as display text.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04")
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ", ")
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	}
	return fmt.Sprint(v)
}

// FormatResult renders a query value as plain terminal text: one path per
// line for lists, a bordered table for tables.
func FormatResult(v any, width int) string {
	switch r := v.(type) {
	case PageList:
		if len(r) == 0 {
			return "(no results)"
		}
		var b strings.Builder
		for _, p := range r {
			b.WriteString("- ")
			b.WriteString(p.Path)
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	case *Table:
		if r.Len() == 0 {
			return "(no results)"
		}
		rows := make([][]string, 0, len(r.Rows))
		for _, row := range r.Rows {
			cells := []string{row.Page.Path}
			for _, v := range row.Values {
				cells = append(cells, FormatValue(v))
			}
			rows = append(rows, cells)
		}
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers(r.Headers...).
			Rows(rows...)
		if width > 0 {
			t = t.Width(width)
		}
		return t.Render()
	case Result:
		if !r.Successful {
			return fmt.Sprintf("error: %v", r.Value)
		}
		return FormatResult(r.Value, width)
	}
	return fmt.Sprint(v)
}
