package fulfillment

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// EventType classifies a push frame.
type EventType string

const (
	EventSubscribed EventType = "subscribed"
	EventRequested  EventType = "requested"
	EventFulfilled  EventType = "fulfilled"
	EventTimeout    EventType = "timeout"
	EventError      EventType = "error"
)

// Event is a decoded push frame.
type Event struct {
	Type       EventType
	RequestID  string
	DeployHash string // request or fulfill deploy, depending on Type
	Randomness string
	Message    string // error text for EventError
	Timestamp  string // server timestamp, as sent
	ReceivedAt time.Time
}

// ParseEvent decodes a push frame. Frames that are not JSON objects or carry
// no recognised type return false.
func ParseEvent(f Frame) (Event, bool) {
	if !gjson.ValidBytes(f.Data) {
		return Event{}, false
	}
	root := gjson.ParseBytes(f.Data)
	if !root.IsObject() {
		return Event{}, false
	}

	ev := Event{
		Type:       EventType(root.Get("type").String()),
		RequestID:  firstString(root, "request_id", "requestId"),
		DeployHash: firstString(root, "deploy_hash", "deployHash"),
		Randomness: root.Get("randomness").String(),
		Message:    firstString(root, "message", "error"),
		Timestamp:  root.Get("timestamp").String(),
		ReceivedAt: f.ReceivedAt,
	}

	switch ev.Type {
	case EventSubscribed, EventRequested, EventFulfilled, EventTimeout, EventError:
		return ev, true
	}
	return Event{}, false
}

func firstString(root gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := root.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// command is a client-to-server frame.
type command struct {
	Cmd       string `json:"cmd"`
	RequestID string `json:"request_id"`
}

func subscribeFrame(requestID string) []byte {
	b, _ := json.Marshal(command{Cmd: "subscribe", RequestID: requestID})
	return b
}

func unsubscribeFrame(requestID string) []byte {
	b, _ := json.Marshal(command{Cmd: "unsubscribe", RequestID: requestID})
	return b
}
