// Package ticklog groups the structured log events pushed by a Bob node into
// per-tick buckets and keeps a bounded, ordered view of the most recent ticks.
package ticklog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// TypeWelcome is the control message sent once a subscription is established.
const TypeWelcome = "welcome"

// RawLogEvent is one message from the tick-log stream. Control messages carry
// only Type; data events carry Message.
type RawLogEvent struct {
	Type    string      `json:"type,omitempty"`
	Message *LogMessage `json:"message,omitempty"`
}

// LogMessage is the payload of a data event. Tick is a pointer so a missing tick
// can be told apart from tick zero.
type LogMessage struct {
	Tick        *uint64         `json:"tick"`
	LogID       uint64          `json:"logId"`
	LogDigest   string          `json:"logDigest"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	LogTypename string          `json:"logTypename"`
	TypeCode    int             `json:"type"`
	Body        map[string]any  `json:"body,omitempty"`
}

// TickValue returns the tick, or false when the message has none.
func (m *LogMessage) TickValue() (uint64, bool) {
	if m == nil || m.Tick == nil {
		return 0, false
	}
	return *m.Tick, true
}

// TimestampString renders the timestamp whether it arrived as a string or a number.
func (m *LogMessage) TimestampString() string {
	if m == nil || len(m.Timestamp) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Timestamp, &s); err == nil {
		return s
	}
	return string(m.Timestamp)
}

// BodyString renders the body as sorted key=value pairs.
func (m *LogMessage) BodyString() string {
	if m == nil || len(m.Body) == 0 {
		return ""
	}
	b, err := json.Marshal(m.Body)
	if err != nil {
		return fmt.Sprintf("%v", m.Body)
	}
	return string(b)
}

// IsWelcome reports whether the event is the subscription acknowledgement.
func (e RawLogEvent) IsWelcome() bool {
	return e.Type == TypeWelcome
}

// Decode parses one frame of the tick-log stream. Frames are JSON objects, but
// the upstream also sends them as JSON-encoded strings, so one level of string
// encoding is unwrapped first.
func Decode(raw []byte) (RawLogEvent, error) {
	var ev RawLogEvent
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		s, err := strconv.Unquote(string(raw))
		if err != nil {
			var alt string
			if jerr := json.Unmarshal(raw, &alt); jerr != nil {
				return ev, fmt.Errorf("unwrap string frame: %w", jerr)
			}
			s = alt
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ev, fmt.Errorf("decode tick-log frame: %w", err)
	}
	return ev, nil
}
