package timeline

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
)

// PlainText strips markup from status HTML. Paragraphs become blank-line
// separated, <br> becomes a newline.
func PlainText(content string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.TrimSpace(content)
			}
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "p" {
				b.WriteString("\n\n")
			}
		}
	}
}

func statusText(s mastodon.Status) string {
	var b strings.Builder
	if s.Reblog != nil {
		fmt.Fprintf(&b, "%s boosted ", s.Account.DisplayNameOrUsername())
	}
	main := s.MainContent()
	fmt.Fprintf(&b, "%s: ", main.Account.DisplayNameOrUsername())
	if main.SpoilerText != "" {
		fmt.Fprintf(&b, "[CW: %s] ", main.SpoilerText)
	}
	b.WriteString(PlainText(main.Content))
	return b.String()
}

var notificationVerbs = map[string]string{
	"mention":        "mentioned you",
	"status":         "posted",
	"reblog":         "boosted your post",
	"favourite":      "favourited your post",
	"follow":         "followed you",
	"follow_request": "requested to follow you",
	"poll":           "poll has ended",
	"update":         "edited a post",
}

func notificationText(n mastodon.Notification) string {
	verb, ok := notificationVerbs[n.Type]
	if !ok {
		verb = n.Type
	}
	text := fmt.Sprintf("%s %s", n.Account.DisplayNameOrUsername(), verb)
	if n.Status != nil {
		text += ": " + PlainText(n.Status.MainContent().Content)
	}
	return text
}
