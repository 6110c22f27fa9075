package stream

import (
	"context"
	"sync"
)

// Session owns a WSChannel's connection lifetime apart from the caller's
// context, so subscriptions can still send their unsubscribe requests while
// the caller is shutting down.
type Session struct {
	Channel *WSChannel

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	subs []Subscription
	shut bool
}

// StartSession runs ch until Shutdown.
func StartSession(ch *WSChannel) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{Channel: ch, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		ch.Run(ctx)
	}()
	return s
}

// Track registers a started subscription to be stopped by Shutdown. Tracking
// after Shutdown stops sub at once.
func (s *Session) Track(sub Subscription) {
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		sub.Stop()
		return
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Shutdown stops tracked subscriptions in reverse order while the connection is
// still up, then closes the channel and waits for Run to return. It is safe to
// call more than once.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.shut = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Stop()
	}
	_ = s.Channel.Close()
	s.cancel()
	<-s.done
}
