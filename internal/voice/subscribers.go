package voice

import (
	"sync"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

// Subscribers is the handler registry shared by session clients. Handlers
// are called outside the lock, in registration order.
type Subscribers struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]func(call.Event)
	order    []int
}

func (s *Subscribers) Subscribe(handler func(call.Event)) func() {
	s.mu.Lock()
	if s.handlers == nil {
		s.handlers = make(map[int]func(call.Event))
	}
	id := s.next
	s.next++
	s.handlers[id] = handler
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Subscribers) Emit(ev call.Event) {
	s.mu.RLock()
	handlers := make([]func(call.Event), 0, len(s.order))
	for _, id := range s.order {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (s *Subscribers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}
