// Package ui composes modal boxes over the main layout.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/notecards/internal/styles"
)

// DimStyle greys out the layout behind a modal. Colors are stripped first
// since faint does not combine reliably with existing SGR codes.
var DimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

// Modal renders title and body in the modal box. width <= 0 sizes to content.
func Modal(title, body string, width int) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(styles.ModalTitle.Render(title))
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	box := styles.ModalBox
	if width > 0 {
		box = box.Width(width)
	}
	return box.Render(b.String())
}

// OverlayModal centers modal over a dimmed background of width x height.
func OverlayModal(background, modal string, width, height int) string {
	bgLines := strings.Split(background, "\n")
	fgLines := strings.Split(modal, "\n")

	fgWidth := 0
	for _, l := range fgLines {
		fgWidth = max(fgWidth, ansi.StringWidth(l))
	}
	x := max(0, (width-fgWidth)/2)
	y := max(0, (height-len(fgLines))/2)

	out := make([]string, height)
	for row := 0; row < height; row++ {
		var bg string
		if row < len(bgLines) {
			bg = ansi.Strip(bgLines[row])
		}
		if i := row - y; i >= 0 && i < len(fgLines) {
			out[row] = splice(bg, fgLines[i], x, fgWidth)
			continue
		}
		out[row] = DimStyle.Render(bg)
	}
	return strings.Join(out, "\n")
}

// splice places fg at column x of the plain line bg, dimming what remains
// visible on either side.
func splice(bg, fg string, x, fgWidth int) string {
	var b strings.Builder
	left := ansi.Truncate(bg, x, "")
	b.WriteString(DimStyle.Render(left))
	if w := ansi.StringWidth(left); w < x {
		b.WriteString(strings.Repeat(" ", x-w))
	}
	b.WriteString(fg)
	if pad := fgWidth - ansi.StringWidth(fg); pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if end := ansi.StringWidth(bg); end > x+fgWidth {
		b.WriteString(DimStyle.Render(ansi.Cut(bg, x+fgWidth, end)))
	}
	return b.String()
}
