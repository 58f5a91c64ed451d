package stream

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/gauthierbraillon/tootmix/internal/mastodon"
)

const (
	eventUpdate       = "update"
	eventNotification = "notification"
)

// frame is the envelope of a streaming websocket message. The payload of
// update and notification events is itself JSON encoded as a string.
type frame struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// decodeFrame turns raw frame bytes into an event. ok is false for frames
// that are valid but carry nothing the timeline consumes (delete,
// filters_changed, status.update, ...).
func decodeFrame(data []byte) (ev Event, name string, ok bool, err error) {
	var f frame
	if err := sonic.Unmarshal(data, &f); err != nil {
		return Event{}, "", false, errors.Wrap(err, "decode envelope")
	}

	switch f.Event {
	case eventUpdate:
		var status mastodon.Status
		if err := sonic.UnmarshalString(f.Payload, &status); err != nil {
			return Event{}, f.Event, false, errors.Wrap(err, "decode status")
		}
		if status.ID == "" {
			return Event{}, f.Event, false, errors.New("status without id")
		}
		return Event{Type: StatusPushed, Status: &status}, f.Event, true, nil
	case eventNotification:
		var notification mastodon.Notification
		if err := sonic.UnmarshalString(f.Payload, &notification); err != nil {
			return Event{}, f.Event, false, errors.Wrap(err, "decode notification")
		}
		if notification.ID == "" {
			return Event{}, f.Event, false, errors.New("notification without id")
		}
		return Event{Type: NotificationPushed, Notification: &notification}, f.Event, true, nil
	default:
		return Event{}, f.Event, false, nil
	}
}
