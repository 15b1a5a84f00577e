package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapText breaks s into lines no wider than width display cells,
// splitting on spaces. Words wider than width are split by cell.
func wrapText(s string, width int) []string {
	if width <= 0 {
		return []string{s}
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		lines = append(lines, wrapParagraph(para, width)...)
	}
	return lines
}

func wrapParagraph(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	var line strings.Builder
	lineWidth := 0
	flush := func() {
		lines = append(lines, line.String())
		line.Reset()
		lineWidth = 0
	}
	for _, word := range words {
		w := runewidth.StringWidth(word)
		for w > width {
			if lineWidth > 0 {
				flush()
			}
			head := runewidth.Truncate(word, width, "")
			lines = append(lines, head)
			word = word[len(head):]
			w = runewidth.StringWidth(word)
		}
		if w == 0 {
			continue
		}
		if lineWidth > 0 && lineWidth+1+w > width {
			flush()
		}
		if lineWidth > 0 {
			line.WriteByte(' ')
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += w
	}
	if lineWidth > 0 {
		flush()
	}
	return lines
}

// countdownBar renders remaining time as a bar of width cells.
func countdownBar(remaining, total float64, width int) string {
	if width <= 0 {
		return ""
	}
	frac := 0.0
	if total > 0 {
		frac = max(0, min(1, remaining/total))
	}
	filled := int(frac*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
