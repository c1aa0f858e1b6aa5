package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

type DeepgramOptions struct {
	APIKey   string
	Model    string
	Language string
}

type liveConn interface {
	Connect() bool
	Stop()
	Write(p []byte) (int, error)
}

type dialFunc func(ctx context.Context, rate int, cb *deepgramCallback) (liveConn, error)

// DeepgramSession is a local session client: the user's speech is
// transcribed by Deepgram live streaming and the prepared questions are
// posted to the transcript as the interviewer's opening line.
type DeepgramSession struct {
	Subscribers

	input  AudioInput
	dial   dialFunc
	logger *slog.Logger

	mu     sync.Mutex
	active *deepgramCall
}

type deepgramCall struct {
	conn    liveConn
	capture *Capture
	cancel  context.CancelFunc
	cb      *deepgramCallback
}

func NewDeepgramSession(opts DeepgramOptions, input AudioInput) *DeepgramSession {
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	return &DeepgramSession{
		input:  input,
		dial:   deepgramDialer(opts),
		logger: slog.Default().With("component", "deepgram"),
	}
}

func deepgramDialer(opts DeepgramOptions) dialFunc {
	return func(ctx context.Context, rate int, cb *deepgramCallback) (liveConn, error) {
		cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
		tOptions := &interfaces.LiveTranscriptionOptions{
			Model:          opts.Model,
			Language:       opts.Language,
			Punctuate:      true,
			SmartFormat:    true,
			InterimResults: true,
			UtteranceEndMs: "1000",
			VadEvents:      true,
			Encoding:       "linear16",
			SampleRate:     rate,
			Channels:       1,
		}
		dg, err := client.NewWSUsingCallback(ctx, opts.APIKey, cOptions, tOptions, cb)
		if err != nil {
			return nil, err
		}
		return dg, nil
	}
}

// Init configures the Deepgram SDK's own logging. Call once at startup.
func Init() {
	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
}

// Start ignores the agent id; there is no hosted agent on this path.
func (d *DeepgramSession) Start(ctx context.Context, agent string, opts *call.StartOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return ErrSessionActive
	}
	if d.input == nil {
		return fmt.Errorf("%w: no audio input", ErrNoMicrophone)
	}

	capture, err := d.input.Open()
	if err != nil {
		return err
	}

	var opening string
	if opts != nil {
		opening = strings.TrimSpace(opts.VariableValues[call.QuestionsVariable])
	}
	cb := newDeepgramCallback(d.Emit, opening)

	sessCtx, cancel := context.WithCancel(context.Background())
	conn, err := d.dial(sessCtx, capture.Rate, cb)
	if err != nil {
		cancel()
		_ = capture.Close()
		return fmt.Errorf("create deepgram client: %w", err)
	}
	if !conn.Connect() {
		cancel()
		_ = capture.Close()
		return fmt.Errorf("deepgram connect failed")
	}

	d.active = &deepgramCall{conn: conn, capture: capture, cancel: cancel, cb: cb}
	go capture.Stream(sessCtx, conn)
	d.logger.Info("deepgram session started", "agent", agent, "sample_rate", capture.Rate)
	return nil
}

// Stop tears down the active session. It is a no-op when none is active.
func (d *DeepgramSession) Stop() error {
	d.mu.Lock()
	active := d.active
	d.active = nil
	d.mu.Unlock()
	if active == nil {
		return nil
	}

	active.cancel()
	err := active.capture.Close()
	active.conn.Stop()
	active.cb.end()
	if err != nil {
		return fmt.Errorf("stop microphone: %w", err)
	}
	return nil
}

// deepgramCallback translates Deepgram live events into call events.
// is_final fragments are held until Deepgram marks the end of speech so
// each utterance becomes one final transcript line.
type deepgramCallback struct {
	emit    func(call.Event)
	opening string
	buffer  utteranceBuffer

	startOnce sync.Once
	endOnce   sync.Once
}

func newDeepgramCallback(emit func(call.Event), opening string) *deepgramCallback {
	return &deepgramCallback{emit: emit, opening: opening}
}

func (c *deepgramCallback) Open(*api.OpenResponse) error {
	c.startOnce.Do(func() {
		c.emit(call.Event{Type: call.EventCallStart})
		if c.opening != "" {
			c.emitTranscript(call.RoleAssistant, call.TranscriptFinal, c.opening)
		}
	})
	return nil
}

func (c *deepgramCallback) Message(mr *api.MessageResponse) error {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	sentence := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)

	if !mr.IsFinal {
		if sentence != "" {
			c.emitTranscript(call.RoleUser, call.TranscriptPartial, sentence)
		}
		return nil
	}

	c.buffer.Add(sentence)
	if mr.SpeechFinal {
		c.flush()
	}
	return nil
}

func (c *deepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c *deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error {
	c.emit(call.Event{Type: call.EventSpeechStart})
	return nil
}

func (c *deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error {
	c.flush()
	c.emit(call.Event{Type: call.EventSpeechEnd})
	return nil
}

func (c *deepgramCallback) Close(*api.CloseResponse) error {
	c.end()
	return nil
}

func (c *deepgramCallback) Error(er *api.ErrorResponse) error {
	if er == nil {
		return nil
	}
	msg := strings.TrimSpace(er.Description)
	if er.ErrCode != "" {
		msg = strings.TrimSpace(er.ErrCode + " " + msg)
	}
	c.emit(call.Event{Type: call.EventError, Err: &call.RemoteError{Message: msg}})
	return nil
}

func (c *deepgramCallback) UnhandledEvent([]byte) error { return nil }

func (c *deepgramCallback) flush() {
	if text := c.buffer.Flush(); text != "" {
		c.emitTranscript(call.RoleUser, call.TranscriptFinal, text)
	}
}

// end flushes pending speech and reports call-end exactly once.
func (c *deepgramCallback) end() {
	c.endOnce.Do(func() {
		c.flush()
		c.emit(call.Event{Type: call.EventCallEnd})
	})
}

func (c *deepgramCallback) emitTranscript(role call.Role, kind, text string) {
	c.emit(call.Event{Type: call.EventMessage, Message: &call.TranscriptEvent{
		Type:           call.MessageTypeTranscript,
		TranscriptType: kind,
		Role:           role,
		Transcript:     text,
	}})
}

var _ call.SessionClient = (*DeepgramSession)(nil)
