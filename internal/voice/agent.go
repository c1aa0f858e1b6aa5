package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

var ErrSessionActive = errors.New("session already active")

// AudioInput opens a capture stream for the length of one session.
type AudioInput interface {
	Open() (*Capture, error)
}

type startFrame struct {
	Type           string            `json:"type"`
	AssistantID    string            `json:"assistant_id"`
	VariableValues map[string]string `json:"variable_values,omitempty"`
}

type controlFrame struct {
	Type string `json:"type"`
}

// agentFrame is every JSON frame the agent may send. Binary frames carry
// the agent's synthesized audio and are ignored.
type agentFrame struct {
	Type           string            `json:"type"`
	TranscriptType string            `json:"transcriptType"`
	Role           call.Role         `json:"role"`
	Transcript     string            `json:"transcript"`
	Message        string            `json:"message"`
	Error          *call.RemoteError `json:"error"`
}

// AgentClient runs a voice session against a hosted agent over a WebSocket.
// The agent hears microphone audio as binary PCM16 frames and reports
// transcripts and lifecycle events as JSON text frames.
type AgentClient struct {
	Subscribers

	url    string
	token  string
	input  AudioInput
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	active *agentSession
}

type agentSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	capture *Capture

	stopped  bool
	endOnce  sync.Once
	loopDone chan struct{}
}

// NewAgentClient returns a client for the agent endpoint at url. input may be
// nil, in which case no audio is sent.
func NewAgentClient(url, token string, input AudioInput) *AgentClient {
	return &AgentClient{
		url:    url,
		token:  token,
		input:  input,
		dialer: websocket.DefaultDialer,
		logger: slog.Default().With("component", "agent"),
	}
}

func (a *AgentClient) Start(ctx context.Context, agent string, opts *call.StartOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != nil {
		return ErrSessionActive
	}

	header := http.Header{}
	if a.token != "" {
		header.Set("Authorization", "Bearer "+a.token)
	}
	conn, resp, err := a.dialer.DialContext(ctx, a.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial agent: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial agent: %w", err)
	}

	frame := startFrame{Type: "start", AssistantID: agent}
	if opts != nil {
		frame.VariableValues = opts.VariableValues
	}
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send start frame: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &agentSession{conn: conn, cancel: cancel, loopDone: make(chan struct{})}

	if a.input != nil {
		capture, err := a.input.Open()
		if err != nil {
			cancel()
			_ = conn.Close()
			return fmt.Errorf("open audio input: %w", err)
		}
		sess.capture = capture
		go capture.Stream(sessCtx, &binaryWriter{sess: sess})
	}

	a.active = sess
	go a.readLoop(sess)
	a.logger.Info("agent session started", "agent", agent)
	return nil
}

// Stop ends the active session. It is a no-op when no session is active.
func (a *AgentClient) Stop() error {
	a.mu.Lock()
	sess := a.active
	a.active = nil
	if sess != nil {
		sess.stopped = true
	}
	a.mu.Unlock()
	if sess == nil {
		return nil
	}

	sess.cancel()
	if sess.capture != nil {
		_ = sess.capture.Close()
	}

	sess.writeMu.Lock()
	_ = sess.conn.WriteJSON(controlFrame{Type: "stop"})
	_ = sess.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	sess.writeMu.Unlock()

	err := sess.conn.Close()
	<-sess.loopDone
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close agent connection: %w", err)
	}
	return nil
}

func (a *AgentClient) readLoop(sess *agentSession) {
	defer close(sess.loopDone)
	defer a.endSession(sess)

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			stopped := sess.stopped
			a.mu.Unlock()
			if !stopped && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				a.logger.Error("agent connection lost", "error", err)
				a.Emit(call.Event{Type: call.EventError, Err: &call.RemoteError{Message: "Connection to the interviewer was lost."}})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame agentFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			a.logger.Warn("malformed agent frame", "error", err)
			continue
		}
		if frame.Type == string(call.EventCallEnd) {
			a.endSession(sess)
			continue
		}
		if ev, ok := translateFrame(frame); ok {
			a.Emit(ev)
		}
	}
}

// endSession emits call-end once per session, whether the agent hung up,
// the connection dropped, or Stop was called.
func (a *AgentClient) endSession(sess *agentSession) {
	sess.endOnce.Do(func() {
		a.mu.Lock()
		owned := a.active == sess
		if owned {
			a.active = nil
			sess.stopped = true
		}
		a.mu.Unlock()
		sess.cancel()
		if owned {
			_ = sess.conn.Close()
		}
		a.Emit(call.Event{Type: call.EventCallEnd})
	})
}

func translateFrame(f agentFrame) (call.Event, bool) {
	switch f.Type {
	case string(call.EventCallStart):
		return call.Event{Type: call.EventCallStart}, true
	case string(call.EventSpeechStart):
		return call.Event{Type: call.EventSpeechStart}, true
	case string(call.EventSpeechEnd):
		return call.Event{Type: call.EventSpeechEnd}, true
	case string(call.EventError):
		return call.Event{Type: call.EventError, Err: &call.RemoteError{Message: f.Message, Cause: f.Error}}, true
	case "":
		return call.Event{}, false
	default:
		return call.Event{Type: call.EventMessage, Message: &call.TranscriptEvent{
			Type:           f.Type,
			TranscriptType: f.TranscriptType,
			Role:           f.Role,
			Transcript:     f.Transcript,
		}}, true
	}
}

// binaryWriter sends each write as one binary frame. gorilla/websocket
// allows a single concurrent writer, so writes share the session lock.
type binaryWriter struct {
	sess *agentSession
}

func (w *binaryWriter) Write(p []byte) (int, error) {
	w.sess.writeMu.Lock()
	defer w.sess.writeMu.Unlock()
	if err := w.sess.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

var _ call.SessionClient = (*AgentClient)(nil)
