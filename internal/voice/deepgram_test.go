package voice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

func messageResponse(t *testing.T, raw string) *api.MessageResponse {
	t.Helper()
	var mr api.MessageResponse
	if err := json.Unmarshal([]byte(raw), &mr); err != nil {
		t.Fatalf("unmarshal message response: %v", err)
	}
	return &mr
}

type eventLog struct {
	mu     sync.Mutex
	events []call.Event
}

func (l *eventLog) emit(ev call.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []call.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]call.Event(nil), l.events...)
}

func TestDeepgramCallbackBuffersUntilSpeechFinal(t *testing.T) {
	var log eventLog
	cb := newDeepgramCallback(log.emit, "")

	_ = cb.Message(messageResponse(t, `{"is_final":false,"channel":{"alternatives":[{"transcript":"I worked"}]}}`))
	_ = cb.Message(messageResponse(t, `{"is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"I worked on"}]}}`))
	_ = cb.Message(messageResponse(t, `{"is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"payments."}]}}`))

	events := log.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected partial and final events, got %#v", events)
	}
	if events[0].Message.TranscriptType != call.TranscriptPartial || events[0].Message.Transcript != "I worked" {
		t.Fatalf("unexpected partial %#v", events[0].Message)
	}
	final := events[1].Message
	if final.TranscriptType != call.TranscriptFinal || final.Role != call.RoleUser || final.Transcript != "I worked on payments." {
		t.Fatalf("unexpected final %#v", final)
	}
}

func TestDeepgramCallbackUtteranceEndFlushes(t *testing.T) {
	var log eventLog
	cb := newDeepgramCallback(log.emit, "")

	_ = cb.Message(messageResponse(t, `{"is_final":true,"channel":{"alternatives":[{"transcript":"Go and Rust"}]}}`))
	_ = cb.UtteranceEnd(&api.UtteranceEndResponse{})

	events := log.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected final and speech-end, got %#v", events)
	}
	if events[0].Message == nil || events[0].Message.Transcript != "Go and Rust" {
		t.Fatalf("expected flushed transcript, got %#v", events[0])
	}
	if events[1].Type != call.EventSpeechEnd {
		t.Fatalf("expected speech-end, got %#v", events[1])
	}
}

func TestDeepgramCallbackSkipsEmptyResults(t *testing.T) {
	var log eventLog
	cb := newDeepgramCallback(log.emit, "")

	_ = cb.Message(messageResponse(t, `{"is_final":false,"channel":{"alternatives":[{"transcript":"  "}]}}`))
	_ = cb.Message(messageResponse(t, `{"is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":""}]}}`))
	_ = cb.Message(messageResponse(t, `{"is_final":true,"channel":{"alternatives":[]}}`))
	_ = cb.Message(nil)

	if events := log.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events, got %#v", events)
	}
}

func TestDeepgramCallbackOpenAnnouncesQuestions(t *testing.T) {
	var log eventLog
	cb := newDeepgramCallback(log.emit, "- Q1\n- Q2")

	_ = cb.Open(&api.OpenResponse{})
	_ = cb.Open(&api.OpenResponse{})

	events := log.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected call-start and opening line once, got %#v", events)
	}
	if events[0].Type != call.EventCallStart {
		t.Fatalf("expected call-start first, got %#v", events[0])
	}
	if events[1].Message.Role != call.RoleAssistant || events[1].Message.Transcript != "- Q1\n- Q2" {
		t.Fatalf("unexpected opening line %#v", events[1].Message)
	}
}

func TestDeepgramCallbackCloseFlushesAndEndsOnce(t *testing.T) {
	var log eventLog
	cb := newDeepgramCallback(log.emit, "")

	_ = cb.Message(messageResponse(t, `{"is_final":true,"channel":{"alternatives":[{"transcript":"Thanks"}]}}`))
	_ = cb.Close(&api.CloseResponse{})
	_ = cb.Close(&api.CloseResponse{})

	events := log.snapshot()
	if len(events) != 2 || events[0].Message.Transcript != "Thanks" || events[1].Type != call.EventCallEnd {
		t.Fatalf("unexpected close events %#v", events)
	}
}

func TestDeepgramCallbackError(t *testing.T) {
	var log eventLog
	cb := newDeepgramCallback(log.emit, "")

	_ = cb.SpeechStarted(&api.SpeechStartedResponse{})
	_ = cb.Error(&api.ErrorResponse{ErrCode: "NET-0001", Description: "socket closed"})

	events := log.snapshot()
	if len(events) != 2 || events[0].Type != call.EventSpeechStart {
		t.Fatalf("unexpected events %#v", events)
	}
	var remote *call.RemoteError
	if !errors.As(events[1].Err, &remote) || remote.Message != "NET-0001 socket closed" {
		t.Fatalf("unexpected error event %#v", events[1])
	}
}

type fakeInput struct {
	dev *fakeDevice
	err error
}

func (f *fakeInput) Open() (*Capture, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Capture{dev: f.dev, Rate: 16000}, nil
}

type fakeLive struct {
	mu        sync.Mutex
	connectOK bool
	stopped   int
	written   int
}

func (f *fakeLive) Connect() bool { return f.connectOK }

func (f *fakeLive) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeLive) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written += len(p)
	return len(p), nil
}

func newTestDeepgramSession(input AudioInput, live *fakeLive) (*DeepgramSession, *int) {
	rate := new(int)
	d := NewDeepgramSession(DeepgramOptions{}, input)
	d.dial = func(_ context.Context, r int, cb *deepgramCallback) (liveConn, error) {
		*rate = r
		if live.connectOK {
			_ = cb.Open(&api.OpenResponse{})
		}
		return live, nil
	}
	return d, rate
}

func TestDeepgramSessionStartStop(t *testing.T) {
	dev := newFakeDevice()
	live := &fakeLive{connectOK: true}
	session, rate := newTestDeepgramSession(&fakeInput{dev: dev}, live)
	events := collectEvents(session)

	err := session.Start(context.Background(), "wf-1", &call.StartOptions{
		VariableValues: map[string]string{call.QuestionsVariable: "- Q1"},
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if *rate != 16000 {
		t.Fatalf("expected capture rate passed to dial, got %d", *rate)
	}
	if ev := nextEvent(t, events); ev.Type != call.EventCallStart {
		t.Fatalf("expected call-start, got %#v", ev)
	}
	if ev := nextEvent(t, events); ev.Message == nil || ev.Message.Transcript != "- Q1" {
		t.Fatalf("expected opening questions, got %#v", ev)
	}
	if err := session.Start(context.Background(), "wf-1", nil); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if ev := nextEvent(t, events); ev.Type != call.EventCallEnd {
		t.Fatalf("expected call-end, got %#v", ev)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	live.mu.Lock()
	stopped := live.stopped
	live.mu.Unlock()
	if stopped != 1 {
		t.Fatalf("expected deepgram client stopped once, got %d", stopped)
	}
	if _, devStopped := dev.counts(); devStopped != 1 {
		t.Fatalf("expected microphone released once, got %d", devStopped)
	}
	select {
	case ev := <-events:
		t.Fatalf("expected a single call-end, got extra %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeepgramSessionConnectFailureReleasesMic(t *testing.T) {
	dev := newFakeDevice()
	session, _ := newTestDeepgramSession(&fakeInput{dev: dev}, &fakeLive{connectOK: false})

	if err := session.Start(context.Background(), "wf-1", nil); err == nil {
		t.Fatal("expected connect failure")
	}
	if _, stopped := dev.counts(); stopped != 1 {
		t.Fatalf("expected microphone released, got %d", stopped)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("Stop after failed start returned error: %v", err)
	}
}

func TestDeepgramSessionMicUnavailable(t *testing.T) {
	session, _ := newTestDeepgramSession(&fakeInput{err: ErrNoMicrophone}, &fakeLive{connectOK: true})
	if err := session.Start(context.Background(), "wf-1", nil); !errors.Is(err, ErrNoMicrophone) {
		t.Fatalf("expected ErrNoMicrophone, got %v", err)
	}
}

type feedbackRecorder struct {
	mu   sync.Mutex
	reqs []call.FeedbackRequest
}

func (r *feedbackRecorder) CreateInterview(context.Context, call.InterviewRequest) (call.InterviewResult, error) {
	return call.InterviewResult{Success: true, InterviewID: "i1"}, nil
}

func (r *feedbackRecorder) CreateFeedback(_ context.Context, req call.FeedbackRequest) (call.FeedbackResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return call.FeedbackResult{Success: true, FeedbackID: "f1"}, nil
}

type routeRecorder struct{ routes []string }

func (r *routeRecorder) Push(route string) { r.routes = append(r.routes, route) }

type alertRecorder struct{ alerts []string }

func (a *alertRecorder) Alert(msg string) { a.alerts = append(a.alerts, msg) }

type micOK struct{}

func (micOK) Probe(context.Context) error { return nil }

func TestDeepgramHangupKeepsBufferedAnswer(t *testing.T) {
	dev := newFakeDevice()
	live := &fakeLive{connectOK: true}
	session := NewDeepgramSession(DeepgramOptions{}, &fakeInput{dev: dev})
	var cb *deepgramCallback
	session.dial = func(_ context.Context, _ int, c *deepgramCallback) (liveConn, error) {
		cb = c
		_ = c.Open(&api.OpenResponse{})
		return live, nil
	}

	store := &feedbackRecorder{}
	nav := &routeRecorder{}
	alerts := &alertRecorder{}
	ctrl := call.NewController(call.Props{
		UserID:      "u1",
		InterviewID: "i1",
		Mode:        call.ModeFixed,
		Questions:   []string{"Tell me about a project"},
	}, call.Deps{
		Session:   session,
		Store:     store,
		Navigator: nav,
		Alerter:   alerts,
		Mic:       micOK{},
		Agent:     call.AgentConfig{WorkflowID: "wf-1"},
	})
	defer ctrl.Close()

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if ctrl.Status() != call.StatusActive {
		t.Fatalf("expected ACTIVE after open, got %s", ctrl.Status())
	}

	_ = cb.Message(messageResponse(t, `{"is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"I led the migration"}]}}`))

	if err := ctrl.End(context.Background()); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.reqs) != 1 {
		t.Fatalf("expected one feedback request, got %d", len(store.reqs))
	}
	want := []call.Message{
		{Role: call.RoleAssistant, Content: "- Tell me about a project"},
		{Role: call.RoleUser, Content: "I led the migration"},
	}
	if got := store.reqs[0].Transcript; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected buffered answer in feedback, got %#v", got)
	}
	if len(nav.routes) != 1 || nav.routes[0] != call.FeedbackRoute("i1") {
		t.Fatalf("expected feedback route, got %v", nav.routes)
	}
	if len(alerts.alerts) != 0 {
		t.Fatalf("expected no alerts, got %v", alerts.alerts)
	}
}
