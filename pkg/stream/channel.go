// Package stream bridges the management API's push channel to local state. It
// provides the channel transport, the two live-data subscriptions (service log
// tailing and Bob tick-log streaming) and the notification sink used when a
// feed cannot be opened.
package stream

import (
	"encoding/json"
	"errors"
)

// Event names on the push channel.
const (
	EventSubscribeServiceLog   = "subscribe-service-log"
	EventUnsubscribeServiceLog = "unsubscribe-service-log"
	EventServiceLog            = "service-log"

	EventSubscribeBobLog   = "subscribe-bob-log"
	EventUnsubscribeBobLog = "unsubscribe-bob-log"
	EventBobLog            = "bob-log"
)

var (
	ErrNotConnected = errors.New("event channel not connected")
	ErrClosed       = errors.New("event channel closed")
)

// Channel is a broadcast push channel. Every listener registered for an event
// name receives every frame with that name, whatever topic it was meant for, so
// listeners must filter by identity themselves.
type Channel interface {
	// Emit sends one request without waiting for any acknowledgement.
	Emit(event string, payload any) error
	// Listen registers fn for an event name and returns a function that detaches it.
	Listen(event string, fn func(data json.RawMessage)) (cancel func())
}

// Replayer is implemented by channels that re-send retained requests after a
// reconnect. Subscriptions retain their subscribe request while active.
type Replayer interface {
	Retain(key, event string, payload any)
	Release(key string)
}

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
