package display

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
	"github.com/gauthierbraillon/tootmix/internal/timeline"
)

func sampleStatus() mastodon.Status {
	return mastodon.Status{
		ID:         "101",
		URL:        "https://example.social/@alice/101",
		Account:    mastodon.Account{Username: "alice", Acct: "alice", DisplayName: "Alice"},
		Content:    "<p>Hello from the fediverse</p>",
		CreatedAt:  time.Now(),
		Visibility: mastodon.VisibilityPublic,
	}
}

func TestAC400_TerminalTimeline_ShowsTootText(t *testing.T) {
	output := NewTerminalFormatter().FormatEvent(timeline.NewLocal(sampleStatus()))

	if !strings.Contains(output, "Hello from the fediverse") {
		t.Error("user should see toot text in terminal output")
	}
	if !strings.Contains(output, "Alice") {
		t.Error("user should see author name in terminal output")
	}
}

func TestAC400_TerminalTimeline_ShowsSourceIndicator(t *testing.T) {
	formatter := NewTerminalFormatter()

	local := formatter.FormatEvent(timeline.NewLocal(sampleStatus()))
	home := formatter.FormatEvent(timeline.NewHome(sampleStatus()))

	if !strings.Contains(local, "[LOCAL]") {
		t.Error("user should see local toots tagged as local")
	}
	if !strings.Contains(home, "[HOME]") {
		t.Error("user should see home toots tagged as home")
	}
}

func TestAC400_TerminalTimeline_ShowsNotificationActor(t *testing.T) {
	s := sampleStatus()
	ev := timeline.NewNotification(mastodon.Notification{
		ID:        "1",
		Type:      "reblog",
		Account:   mastodon.Account{Username: "bob"},
		Status:    &s,
		CreatedAt: time.Now(),
	})

	output := NewTerminalFormatter().FormatEvent(ev)

	if !strings.Contains(output, "[NOTIFICATION]") || !strings.Contains(output, "bob boosted your post") {
		t.Errorf("user should see who did what, got:\n%s", output)
	}
}

func TestAC400_TerminalTimeline_ShowsFailuresInline(t *testing.T) {
	ev := timeline.NewLocal(mastodon.PlaceholderStatus(errors.New("connection reset"), time.Now()))

	output := NewTerminalFormatter().FormatEvent(ev)

	if !strings.Contains(output, "[ERROR]") || !strings.Contains(output, "connection reset") {
		t.Errorf("user should see the failure in place, got:\n%s", output)
	}
}

func TestAC401_TerminalTimeline_ShowsRelativeTimestamps(t *testing.T) {
	formatter := NewTerminalFormatter()
	testCases := []struct {
		name      string
		timestamp time.Time
		contains  string
	}{
		{"recent minutes", time.Now().Add(-30 * time.Minute), "min"},
		{"recent hours", time.Now().Add(-3 * time.Hour), "hour"},
		{"recent days", time.Now().Add(-48 * time.Hour), "day"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			output := formatter.FormatTimestamp(tc.timestamp)
			if !strings.Contains(strings.ToLower(output), tc.contains) {
				t.Errorf("user should see relative time (%s) for %s toots", tc.contains, tc.name)
			}
		})
	}
}

func TestAC402_TerminalTimeline_ShowsClickableURLs(t *testing.T) {
	output := NewTerminalFormatter().FormatEvent(timeline.NewHome(sampleStatus()))

	if !strings.Contains(output, "https://example.social/@alice/101") {
		t.Error("user should see clickable toot URL in terminal output")
	}
}

func TestAC403_TerminalTimeline_TruncatesLongText(t *testing.T) {
	formatter := NewTerminalFormatter()
	longText := "This is a very long text that should be truncated because it exceeds the maximum length"

	truncated := formatter.TruncateText(longText, 20)

	if runewidth.StringWidth(truncated) > 20 {
		t.Errorf("user should see truncated text (max 20 cells), got %d", runewidth.StringWidth(truncated))
	}
	if !strings.HasSuffix(truncated, "...") {
		t.Error("user should see ellipsis indicating text was truncated")
	}
}

func TestAC403_TerminalTimeline_TruncatesWideCharactersByCells(t *testing.T) {
	formatter := NewTerminalFormatter()

	truncated := formatter.TruncateText("日本語のトゥートです", 10)

	if runewidth.StringWidth(truncated) > 10 {
		t.Errorf("wide text should fit 10 cells, got %d", runewidth.StringWidth(truncated))
	}
}

func TestAC403_TerminalTimeline_PreservesShortText(t *testing.T) {
	output := NewTerminalFormatter().TruncateText("Short", 20)

	if output != "Short" {
		t.Errorf("user should see full text when under limit, got: %s", output)
	}
}

func TestAC404_TerminalTimeline_ShowsMultipleEntries(t *testing.T) {
	first := sampleStatus()
	second := sampleStatus()
	second.ID = "102"
	second.Content = "<p>Second toot</p>"

	output := NewTerminalFormatter().FormatTimeline([]timeline.Event{
		timeline.NewLocal(first),
		timeline.NewHome(second),
	})

	if !strings.Contains(output, "Hello from the fediverse") || !strings.Contains(output, "Second toot") {
		t.Error("user should see every entry of the timeline")
	}
}

func TestAC405_TerminalTimeline_ShowsEmptyTimelineMessage(t *testing.T) {
	output := NewTerminalFormatter().FormatTimeline(nil)

	if !strings.Contains(strings.ToLower(output), "no") {
		t.Error("user should see message indicating no content available")
	}
}

func TestAC406_AccountStatuses_MarkPinned(t *testing.T) {
	pinned := true
	s := sampleStatus()
	s.Pinned = &pinned

	output := NewTerminalFormatter().FormatStatuses([]mastodon.Status{s, sampleStatus()})

	if strings.Count(output, "📌") != 1 {
		t.Errorf("user should see exactly the pinned toot marked, got:\n%s", output)
	}
}
