package timeline

import (
	"sync"
	"testing"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
)

func TestEvent_TextIsDerivedOnceAndSharedByCopies(t *testing.T) {
	ev := NewHome(status("1", 1))
	copyOf := ev

	var wg sync.WaitGroup
	texts := make([]string, 10)
	for i := range texts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				texts[i] = ev.Text()
			} else {
				texts[i] = copyOf.Text()
			}
		}(i)
	}
	wg.Wait()

	for _, text := range texts {
		if text != "alice: toot 1" {
			t.Errorf("text should be derived from the status, got %q", text)
		}
	}
	if ev.text != copyOf.text {
		t.Error("copies should share the cached text")
	}
}

func TestEvent_WithTextSkipsDerivation(t *testing.T) {
	ev := NewLocal(status("1", 1)).WithText("precomputed")
	if ev.Text() != "precomputed" {
		t.Errorf("precomputed text should be kept, got %q", ev.Text())
	}
}

func TestEvent_UpgradeRecomputesText(t *testing.T) {
	m := NewMerger()
	m.Ingest(NewHome(status("A", 1)))

	local := status("A", 1)
	local.Content = "<p>edited</p>"
	res := m.Ingest(NewLocal(local).WithText("stale"))

	if res.Event.Text() != "alice: edited" {
		t.Errorf("upgraded entry should derive a fresh text, got %q", res.Event.Text())
	}
}

func TestEvent_TextDescribesReblogsSpoilersAndNotifications(t *testing.T) {
	original := status("1", 1)
	original.SpoilerText = "food"
	original.Content = "<p>line one<br>line two</p><p>&amp; more</p>"
	reblog := mastodon.Status{
		ID:      "2",
		Account: mastodon.Account{Username: "bob", DisplayName: "Bob"},
		Reblog:  &original,
	}

	got := NewHome(reblog).Text()
	want := "Bob boosted alice: [CW: food] line one\nline two\n\n& more"
	if got != want {
		t.Errorf("reblog text\nwant %q\ngot  %q", want, got)
	}

	n := NewNotification(mastodon.Notification{
		ID:      "3",
		Type:    "favourite",
		Account: mastodon.Account{Username: "carol"},
		Status:  &original,
	})
	if got := n.Text(); got != "carol favourited your post: line one\nline two\n\n& more" {
		t.Errorf("notification text should say who did what, got %q", got)
	}
}

func TestEvent_AccessorsFollowVariant(t *testing.T) {
	n := NewNotification(mastodon.Notification{ID: "1", Type: "follow"})
	if _, ok := n.Status(); ok {
		t.Error("notification should not expose a status")
	}
	if _, ok := n.StatusID(); ok {
		t.Error("notification should not be deduplicated")
	}

	home := NewHome(status("5", 1))
	if _, ok := home.Notification(); ok {
		t.Error("status event should not expose a notification")
	}
	if id, ok := home.StatusID(); !ok || id != "5" {
		t.Errorf("status event should be keyed by its id, got %q", id)
	}

	placeholder := NewLocal(mastodon.PlaceholderStatus(nil, epoch))
	if !placeholder.IsPlaceholder() {
		t.Error("placeholder status should be recognised")
	}
	if _, ok := placeholder.StatusID(); ok {
		t.Error("placeholder should not be deduplicated")
	}
}

func TestPlainText_KeepsTextOfMalformedMarkup(t *testing.T) {
	if got := PlainText("no markup"); got != "no markup" {
		t.Errorf("plain text should pass through, got %q", got)
	}
	if got := PlainText("<p>unclosed"); got != "unclosed" {
		t.Errorf("unclosed tags should still yield text, got %q", got)
	}
}
