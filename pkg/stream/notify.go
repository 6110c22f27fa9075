package stream

import (
	"log"
	"sync"
	"time"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Notifier surfaces transient user-visible notices. Notify must not block.
type Notifier interface {
	Notify(level Level, msg string)
}

// LogNotifier writes notices to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(level Level, msg string) {
	log.Printf("[NOTICE] %s: %s", level, msg)
}

// Toast is one queued notice.
type Toast struct {
	Level   Level
	Message string
	At      time.Time
}

// Toasts keeps the most recent notices for an on-screen overlay.
type Toasts struct {
	mu    sync.Mutex
	items []Toast
	ttl   time.Duration
	max   int
	now   func() time.Time
}

func NewToasts(ttl time.Duration, max int) *Toasts {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if max <= 0 {
		max = 5
	}
	return &Toasts{ttl: ttl, max: max, now: time.Now}
}

func (t *Toasts) Notify(level Level, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, Toast{Level: level, Message: msg, At: t.now()})
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

// Active drops expired notices and returns the rest, oldest first.
func (t *Toasts) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	live := t.items[:0]
	for _, it := range t.items {
		if now.Sub(it.At) < t.ttl {
			live = append(live, it)
		}
	}
	t.items = live
	out := make([]Toast, len(live))
	copy(out, live)
	return out
}

// MultiNotifier fans a notice out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(level Level, msg string) {
	for _, n := range m {
		n.Notify(level, msg)
	}
}
