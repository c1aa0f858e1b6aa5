package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

// Hub fans call events out to every connected browser. It is the call
// controller's Navigator and Alerter.
type Hub struct {
	mu       sync.RWMutex
	clients  map[chan []byte]struct{}
	lastView []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// LastView returns the most recent view event so late joiners can render
// immediately. It is nil before the first view.
func (h *Hub) LastView() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastView
}

func (h *Hub) BroadcastView(v call.View) {
	payload, ok := marshalEvent(ViewEvent{
		Event: newEvent("view", time.Now().UTC()),
		View:  v,
	})
	if !ok {
		return
	}
	h.mu.Lock()
	h.lastView = payload
	h.mu.Unlock()
	h.Broadcast(payload)
}

func (h *Hub) Alert(msg string) {
	log.Printf("alert: %s", msg)
	h.broadcastEvent(AlertEvent{
		Event:   newEvent("alert", time.Now().UTC()),
		Message: msg,
	})
}

func (h *Hub) Push(route string) {
	h.broadcastEvent(NavigateEvent{
		Event: newEvent("navigate", time.Now().UTC()),
		Route: route,
	})
}

func (h *Hub) broadcastEvent(event any) {
	if payload, ok := marshalEvent(event); ok {
		h.Broadcast(payload)
	}
}

func marshalEvent(event any) ([]byte, bool) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return nil, false
	}
	return payload, true
}

var (
	_ call.Navigator = (*Hub)(nil)
	_ call.Alerter   = (*Hub)(nil)
)
