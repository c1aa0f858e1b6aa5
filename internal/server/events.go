package server

import (
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

// ViewEvent carries the rendered call screen.
type ViewEvent struct {
	Event
	View call.View `json:"view"`
}

type AlertEvent struct {
	Event
	Message string `json:"message"`
}

type NavigateEvent struct {
	Event
	Route string `json:"route"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
