package stream

import (
	"encoding/json"
	"sync"
)

type emitted struct {
	event   string
	payload any
}

// memChannel is an in-process broadcast Channel.
type memChannel struct {
	mu        sync.Mutex
	listeners map[string]map[int]func(json.RawMessage)
	next      int
	emits     []emitted
	retained  map[string]emitted
	failEmit  error
}

func newMemChannel() *memChannel {
	return &memChannel{
		listeners: make(map[string]map[int]func(json.RawMessage)),
		retained:  make(map[string]emitted),
	}
}

func (m *memChannel) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEmit != nil {
		return m.failEmit
	}
	m.emits = append(m.emits, emitted{event, payload})
	return nil
}

func (m *memChannel) Listen(event string, fn func(json.RawMessage)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := m.next
	if m.listeners[event] == nil {
		m.listeners[event] = make(map[int]func(json.RawMessage))
	}
	m.listeners[event][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners[event], id)
	}
}

func (m *memChannel) Retain(key, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retained[key] = emitted{event, payload}
}

func (m *memChannel) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retained, key)
}

func (m *memChannel) push(event string, data string) {
	m.mu.Lock()
	var fns []func(json.RawMessage)
	for _, fn := range m.listeners[event] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(data))
	}
}

func (m *memChannel) listenerCount(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[event])
}

func (m *memChannel) emitted() []emitted {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]emitted, len(m.emits))
	copy(out, m.emits)
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Notify(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, level.String()+": "+msg)
}
