// Package events delivers session changes to browsers over server-sent
// events, optionally fanned out across instances through Redis.
package events

import (
	"encoding/json"
	"time"
)

// Message is one event for the clients watching a session.
type Message struct {
	Key       string          `json:"key"`
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`

	// Origin names the instance that published the message.
	Origin string `json:"origin,omitempty"`
}
