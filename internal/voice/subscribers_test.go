package voice

import (
	"testing"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

func TestSubscribersEmitInOrder(t *testing.T) {
	var subs Subscribers
	var got []string
	subs.Subscribe(func(call.Event) { got = append(got, "first") })
	subs.Subscribe(func(call.Event) { got = append(got, "second") })

	subs.Emit(call.Event{Type: call.EventCallStart})

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected delivery order %v", got)
	}
}

func TestSubscribersUnsubscribe(t *testing.T) {
	var subs Subscribers
	calls := 0
	unsubscribe := subs.Subscribe(func(call.Event) { calls++ })
	subs.Emit(call.Event{Type: call.EventCallStart})

	unsubscribe()
	unsubscribe()
	subs.Emit(call.Event{Type: call.EventCallEnd})

	if calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", calls)
	}
	if subs.Len() != 0 {
		t.Fatalf("expected no handlers, got %d", subs.Len())
	}
}

func TestSubscribersHandlerMayUnsubscribe(t *testing.T) {
	var subs Subscribers
	var unsubscribe func()
	unsubscribe = subs.Subscribe(func(call.Event) { unsubscribe() })

	subs.Emit(call.Event{Type: call.EventCallEnd})

	if subs.Len() != 0 {
		t.Fatalf("expected handler removed, got %d", subs.Len())
	}
}
