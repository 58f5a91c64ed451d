// Package display provides terminal output formatting for tootmix.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

const (
	separator    = " • "
	defaultWidth = 100
)

var (
	homeStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	localStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	notificationStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	metaStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TerminalFormatter formats timeline entries for terminal display.
type TerminalFormatter struct {
	width int
	now   func() time.Time
}

// FormatterOption configures a TerminalFormatter.
type FormatterOption func(*TerminalFormatter)

// WithWidth sets the maximum line width.
func WithWidth(width int) FormatterOption {
	return func(f *TerminalFormatter) {
		if width > 0 {
			f.width = width
		}
	}
}

// NewTerminalFormatter creates a new terminal formatter.
func NewTerminalFormatter(opts ...FormatterOption) *TerminalFormatter {
	f := &TerminalFormatter{width: defaultWidth, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FormatEvent formats a single timeline entry.
func (f *TerminalFormatter) FormatEvent(ev timeline.Event) string {
	var header string
	var url string

	switch {
	case ev.IsPlaceholder():
		header = errorStyle.Render("[ERROR]")
	case ev.Kind() == timeline.KindNotification:
		n, _ := ev.Notification()
		header = fmt.Sprintf("%s%s%s", notificationStyle.Render("[NOTIFICATION]"), separator, f.FormatTimestamp(n.CreatedAt))
		if n.Status != nil {
			url = n.Status.URL
		}
	default:
		s, _ := ev.Status()
		style := localStyle
		if ev.Kind() == timeline.KindHome {
			style = homeStyle
		}
		tag := style.Render("[" + strings.ToUpper(ev.Kind().String()) + "]")
		header = fmt.Sprintf("%s %s%s%s", tag, s.MainContent().Visibility.Glyph(), separator, f.FormatTimestamp(s.CreatedAt))
		url = s.URL
	}

	lines := []string{header}
	lines = append(lines, f.body(ev.Text())...)
	if url != "" {
		lines = append(lines, "  "+metaStyle.Render(url))
	}
	return strings.Join(lines, "\n") + "\n"
}

// FormatStatus formats a status outside the timeline, marking pinned ones.
func (f *TerminalFormatter) FormatStatus(s mastodon.Status) string {
	var header strings.Builder
	if s.IsPinned() {
		header.WriteString("📌 ")
	}
	fmt.Fprintf(&header, "%s %s (@%s)%s%s",
		s.MainContent().Visibility.Glyph(),
		s.Account.DisplayNameOrUsername(),
		s.Account.Acct,
		separator,
		f.FormatTimestamp(s.CreatedAt))

	lines := []string{header.String()}
	lines = append(lines, f.body(timeline.PlainText(s.MainContent().Content))...)
	if s.URL != "" {
		lines = append(lines, "  "+metaStyle.Render(s.URL))
	}
	return strings.Join(lines, "\n") + "\n"
}

// FormatTimeline formats multiple entries for display.
func (f *TerminalFormatter) FormatTimeline(events []timeline.Event) string {
	if len(events) == 0 {
		return "No toots to display.\n"
	}

	formatted := make([]string, 0, len(events))
	for _, ev := range events {
		formatted = append(formatted, f.FormatEvent(ev))
	}
	return strings.Join(formatted, "\n---\n\n")
}

// FormatStatuses formats account statuses for display.
func (f *TerminalFormatter) FormatStatuses(statuses []mastodon.Status) string {
	if len(statuses) == 0 {
		return "No toots to display.\n"
	}

	formatted := make([]string, 0, len(statuses))
	for _, s := range statuses {
		formatted = append(formatted, f.FormatStatus(s))
	}
	return strings.Join(formatted, "\n---\n\n")
}

// body indents text and truncates each line to the formatter width.
func (f *TerminalFormatter) body(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, "  "+f.TruncateText(line, f.width-2))
	}
	return lines
}

// FormatTimestamp formats a timestamp as relative time.
func (f *TerminalFormatter) FormatTimestamp(t time.Time) string {
	diff := f.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return pluralize(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return pluralize(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return pluralize(int(diff.Hours()/24), "day")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// pluralize returns "N unit ago" or "N units ago" based on count.
func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// TruncateText truncates text to maxWidth terminal cells, adding "..." if
// truncated. Wide characters count as two cells.
func (f *TerminalFormatter) TruncateText(text string, maxWidth int) string {
	if runewidth.StringWidth(text) <= maxWidth {
		return text
	}
	if maxWidth <= 3 {
		return "..."
	}
	return runewidth.Truncate(text, maxWidth, "...")
}
