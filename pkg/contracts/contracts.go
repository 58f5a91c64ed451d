// Package contracts holds sample Mastodon API payloads shaped like the
// documented entities (docs.joinmastodon.org/entities). Tests feed them to
// the REST client and the streaming decoder so schema drift shows up as a
// failing test.
package contracts

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// AccountContract is an Account as returned by verify_credentials.
const AccountContract = `{
  "id": "14715",
  "username": "trwnh",
  "acct": "trwnh",
  "display_name": "infinite love ⴳ",
  "locked": false,
  "bot": false,
  "created_at": "2016-11-24T00:00:00.000Z",
  "note": "<p>writing about the fediverse</p>",
  "url": "https://mastodon.social/@trwnh",
  "avatar": "https://files.mastodon.social/accounts/avatars/000/014/715/original/34aa222f4ae2e0a9.png",
  "followers_count": 821,
  "following_count": 178,
  "statuses_count": 33120,
  "source": {"privacy": "public", "sensitive": false, "language": ""}
}`

// StatusContract is a reblog of a status with a content warning, from a
// home timeline page.
const StatusContract = `{
  "id": "103270115826048975",
  "created_at": "2019-12-08T03:48:33.901Z",
  "in_reply_to_id": null,
  "in_reply_to_account_id": null,
  "sensitive": false,
  "spoiler_text": "",
  "visibility": "public",
  "language": "en",
  "uri": "https://mastodon.social/users/Gargron/statuses/103270115826048975/activity",
  "url": null,
  "replies_count": 0,
  "reblogs_count": 0,
  "favourites_count": 0,
  "content": "",
  "reblog": {
    "id": "103270115826048970",
    "created_at": "2019-12-08T03:48:30.000Z",
    "sensitive": true,
    "spoiler_text": "food",
    "visibility": "public",
    "uri": "https://mastodon.social/users/trwnh/statuses/103270115826048970",
    "url": "https://mastodon.social/@trwnh/103270115826048970",
    "content": "<p>lunch was <b>great</b><br>10/10</p>",
    "account": {"id": "14715", "username": "trwnh", "acct": "trwnh", "display_name": "infinite love ⴳ"},
    "media_attachments": [],
    "mentions": [],
    "tags": [],
    "emojis": []
  },
  "account": {"id": "1", "username": "Gargron", "acct": "Gargron", "display_name": "Eugen"},
  "media_attachments": [],
  "mentions": [],
  "tags": [],
  "emojis": [],
  "card": null,
  "poll": null
}`

// OwnStatusContract is a status of the authenticated account. Servers that
// support pins include the pinned attribute.
const OwnStatusContract = `{
  "id": "108880211901672326",
  "created_at": "2022-08-24T22:29:46.493Z",
  "sensitive": false,
  "spoiler_text": "",
  "visibility": "unlisted",
  "uri": "https://mastodon.social/users/trwnh/statuses/108880211901672326",
  "url": "https://mastodon.social/@trwnh/108880211901672326",
  "content": "<p>pinned things</p>",
  "account": {"id": "14715", "username": "trwnh", "acct": "trwnh", "display_name": "infinite love ⴳ"},
  "favourited": false,
  "reblogged": false,
  "muted": false,
  "bookmarked": false,
  "pinned": true
}`

// NotificationContract is a favourite notification.
const NotificationContract = `{
  "id": "34975861",
  "type": "favourite",
  "created_at": "2019-11-23T07:49:02.064Z",
  "account": {"id": "971724", "username": "zsc", "acct": "zsc", "display_name": "Zs"},
  "status": {
    "id": "103186126728896492",
    "created_at": "2019-11-23T07:41:43.000Z",
    "visibility": "public",
    "uri": "https://mastodon.social/users/trwnh/statuses/103186126728896492",
    "url": "https://mastodon.social/@trwnh/103186126728896492",
    "content": "<p>hello</p>",
    "account": {"id": "14715", "username": "trwnh", "acct": "trwnh", "display_name": "infinite love ⴳ"}
  }
}`

// ErrorContract is the body of a rejected request.
const ErrorContract = `{"error": "The access token is invalid"}`

// StreamingFrame builds a websocket message the way the streaming server
// does: the entity is JSON encoded a second time into the payload string.
func StreamingFrame(stream []string, event, payload string) (string, error) {
	frame := struct {
		Stream  []string `json:"stream"`
		Event   string   `json:"event"`
		Payload string   `json:"payload"`
	}{stream, event, payload}

	out, err := sonic.MarshalString(frame)
	if err != nil {
		return "", errors.Wrap(err, "encode streaming frame")
	}
	return out, nil
}
