package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Markdown themes understood by glamour's standard styles.
var markdownThemes = []string{"ascii", "dark", "dracula", "light", "notty", "pink", "tokyo-night"}

// IsValidMarkdownTheme reports whether name is a known glamour style.
func IsValidMarkdownTheme(name string) bool {
	for _, t := range markdownThemes {
		if t == name {
			return true
		}
	}
	return false
}

// ApplyTheme selects the markdown style and, for "light", swaps the text
// palette so cards stay readable on light terminals. Unknown names keep the
// current theme.
func ApplyTheme(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !IsValidMarkdownTheme(name) {
		return
	}
	CurrentMarkdownTheme = name
	if name != "light" {
		return
	}
	TextPrimary = lipgloss.Color("#111827")
	TextSecondary = lipgloss.Color("#374151")
	TextMuted = lipgloss.Color("#6B7280")
	BgSecondary = lipgloss.Color("#E5E7EB")
	BgTertiary = lipgloss.Color("#D1D5DB")
	CurrentSyntaxTheme = "github"

	Title = Title.Foreground(TextPrimary)
	Body = Body.Foreground(TextPrimary)
	Muted = Muted.Foreground(TextMuted)
	CardTitle = CardTitle.Foreground(TextPrimary)
	CardValue = CardValue.Foreground(TextSecondary)
	CardKey = CardKey.Foreground(TextMuted)
	Footer = Footer.Foreground(TextMuted).Background(BgSecondary)
	Header = Header.Background(BgSecondary)
	BarText = BarText.Foreground(TextMuted)
	BarChip = BarChip.Foreground(TextMuted).Background(BgTertiary)
	KeyHint = KeyHint.Foreground(TextMuted).Background(BgTertiary)
}
