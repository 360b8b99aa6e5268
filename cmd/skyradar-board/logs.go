package main

import (
	"strings"
	"sync"

	"github.com/rivo/tview"
)

// logPanel shows the most recent log lines. It is an io.Writer so the
// application logger can write to it through a zerolog.ConsoleWriter.
type logPanel struct {
	textView *tview.TextView

	mu       sync.Mutex
	lines    []string
	maxLines int
}

func newLogPanel(maxLines int) *logPanel {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(maxLines)
	textView.SetBorder(true).SetTitle(" Log ")

	return &logPanel{
		textView: textView,
		lines:    make([]string, 0, maxLines),
		maxLines: maxLines,
	}
}

// Write receives one formatted log event per call.
func (lp *logPanel) Write(p []byte) (int, error) {
	line := tview.Escape(strings.TrimRight(string(p), "\n"))
	if line == "" {
		return len(p), nil
	}

	lp.mu.Lock()
	lp.lines = append(lp.lines, levelColor(line))
	if len(lp.lines) > lp.maxLines {
		lp.lines = lp.lines[len(lp.lines)-lp.maxLines:]
	}
	text := strings.Join(lp.lines, "\n")
	lp.mu.Unlock()

	lp.textView.SetText(text)
	lp.textView.ScrollToEnd()
	return len(p), nil
}

// Lines returns a copy of the buffered lines.
func (lp *logPanel) Lines() []string {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return append([]string(nil), lp.lines...)
}

// levelColor tints a console-formatted line by its level marker.
func levelColor(line string) string {
	switch {
	case strings.Contains(line, " ERR "), strings.Contains(line, " FTL "):
		return "[red]" + line + "[-]"
	case strings.Contains(line, " WRN "):
		return "[yellow]" + line + "[-]"
	case strings.Contains(line, " DBG "):
		return "[gray]" + line + "[-]"
	default:
		return line
	}
}
