package call

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

const (
	generatedInterviewRole = "AI Generated Interview"
	generatedInterviewType = "Generated"

	QuestionsVariable = "questions"
)

// Deps are the collaborators a Controller drives. All fields except Logger
// are required.
type Deps struct {
	Session   SessionClient
	Store     Persistence
	Navigator Navigator
	Alerter   Alerter
	Mic       MicProber
	Agent     AgentConfig
	Logger    *slog.Logger
}

// Controller owns the lifecycle of one interview call. Session events may be
// delivered on any goroutine; state changes are serialized by mu and observers
// are notified outside the lock.
type Controller struct {
	props   Props
	session SessionClient
	store   Persistence
	nav     Navigator
	alerter Alerter
	mic     MicProber
	agent   AgentConfig
	logger  *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once

	// notifyMu orders observer calls so the last one always sees the
	// latest state.
	notifyMu sync.Mutex

	mu          sync.Mutex
	status      Status
	messages    []Message
	speaking    bool
	lastMessage string
	interviewID string
	// hookPending is set between entering FINISHED and the feedback
	// snapshot; final transcripts flushed by Stop are still accepted.
	hookPending bool
	observers   []func(Snapshot)
}

// NewController subscribes to the session client. Call Close to release the
// subscription.
func NewController(props Props, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if props.Mode == "" {
		props.Mode = ModeFixed
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		props:       props,
		session:     deps.Session,
		store:       deps.Store,
		nav:         deps.Navigator,
		alerter:     deps.Alerter,
		mic:         deps.Mic,
		agent:       deps.Agent,
		logger:      logger.With("component", "call"),
		ctx:         ctx,
		cancel:      cancel,
		status:      StatusInactive,
		interviewID: props.InterviewID,
	}
	c.unsubscribe = deps.Session.Subscribe(c.handleEvent)
	return c
}

// Close unsubscribes from the session client. It is safe to call more than
// once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.cancel()
	})
}

// OnChange registers an observer called after every state change. Observers
// are called one at a time and must not start or end the call.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start runs the call-start flow. It is rejected with ErrCallInProgress
// unless the call is INACTIVE. Every other failure is alerted and returns the
// call to INACTIVE.
func (c *Controller) Start(ctx context.Context) error {
	if !c.transition(StatusConnecting, StatusInactive) {
		return ErrCallInProgress
	}
	c.logger.Info("initiating call", "mode", c.props.Mode, "user_id", c.props.UserID, "user_name", c.props.UserName)

	if err := c.mic.Probe(ctx); err != nil {
		c.logger.Error("microphone permission denied", "error", err)
		return c.abort(alertMicrophone, fmt.Errorf("%w: %w", ErrMicrophoneDenied, err))
	}

	if c.props.Mode == ModeGenerate {
		return c.startGenerated(ctx)
	}
	return c.startFixed(ctx)
}

func (c *Controller) startGenerated(ctx context.Context) error {
	if strings.TrimSpace(c.props.UserID) == "" {
		c.logger.Error("generate call without user id")
		return c.abort(alertNotSignedIn, ErrNotSignedIn)
	}
	if !validAgentID(c.agent.AssistantID) {
		c.logger.Error("assistant id missing or placeholder")
		return c.abort(alertAgentConfig, fmt.Errorf("%w: assistant id", ErrAgentConfig))
	}

	result, err := c.store.CreateInterview(ctx, InterviewRequest{
		UserID: c.props.UserID,
		Role:   generatedInterviewRole,
		Type:   generatedInterviewType,
	})
	if err != nil {
		c.logger.Error("create interview failed", "error", err)
		detail := errorDetail(err)
		if detail == "" {
			detail = "Unknown error"
		}
		return c.abort(alertInterviewErrored+detail, fmt.Errorf("%w: %w", ErrInterviewNotStored, err))
	}
	if !result.Success || result.InterviewID == "" {
		c.logger.Error("create interview unsuccessful", "success", result.Success, "interview_id", result.InterviewID)
		return c.abort(alertInterviewFailed, ErrInterviewNotStored)
	}

	c.mu.Lock()
	c.interviewID = result.InterviewID
	c.mu.Unlock()
	c.notify()
	c.logger.Info("interview created", "interview_id", result.InterviewID)

	return c.startSession(ctx, c.agent.AssistantID, nil)
}

func (c *Controller) startFixed(ctx context.Context) error {
	if !validAgentID(c.agent.WorkflowID) {
		c.logger.Error("workflow id missing or placeholder")
		return c.abort(alertAgentConfig, fmt.Errorf("%w: workflow id", ErrAgentConfig))
	}
	return c.startSession(ctx, c.agent.WorkflowID, &StartOptions{
		VariableValues: map[string]string{QuestionsVariable: FormatQuestions(c.props.Questions)},
	})
}

func (c *Controller) startSession(ctx context.Context, agent string, opts *StartOptions) error {
	if c.Status() != StatusConnecting {
		c.logger.Warn("call left CONNECTING before session start", "status", c.Status())
		return nil
	}
	if err := c.session.Start(ctx, agent, opts); err != nil {
		c.logger.Error("session start failed", "agent", agent, "error", err)
		return c.abort(startErrorAlert(err), fmt.Errorf("%w: %w", ErrSessionStart, err))
	}

	// End may have run while the session was coming up, when Stop had
	// nothing to stop yet.
	if status := c.Status(); status != StatusConnecting && status != StatusActive {
		c.logger.Warn("call ended during session start, stopping session", "status", status)
		if err := c.session.Stop(); err != nil {
			c.logger.Warn("session stop failed", "error", err)
		}
		return nil
	}
	c.logger.Info("session start completed", "agent", agent)
	return nil
}

func (c *Controller) abort(alert string, err error) error {
	c.alerter.Alert(alert)
	c.transition(StatusInactive, StatusConnecting)
	return err
}

// End is the user-initiated disconnect. The session client is always told to
// stop, even when the call already finished.
func (c *Controller) End(ctx context.Context) error {
	finished := c.transition(StatusFinished, StatusConnecting, StatusActive)

	var stopErr error
	if err := c.session.Stop(); err != nil {
		c.logger.Warn("session stop failed", "error", err)
		stopErr = fmt.Errorf("stop session: %w", err)
	}

	if finished {
		c.finish(ctx)
	}
	return stopErr
}

func (c *Controller) handleEvent(ev Event) {
	switch ev.Type {
	case EventCallStart:
		c.logger.Info("call started")
		c.transition(StatusActive, StatusConnecting)
	case EventCallEnd:
		c.logger.Info("call ended")
		if c.transition(StatusFinished, StatusConnecting, StatusActive) {
			c.finish(c.ctx)
		}
	case EventMessage:
		c.appendTranscript(ev.Message)
	case EventSpeechStart:
		c.setSpeaking(true)
	case EventSpeechEnd:
		c.setSpeaking(false)
	case EventError:
		c.logger.Error("session error event", "error", ev.Err)
		c.alerter.Alert(sessionErrorAlert(ev.Err))
	default:
		c.logger.Debug("ignoring session event", "type", ev.Type)
	}
}

func (c *Controller) appendTranscript(msg *TranscriptEvent) {
	if msg == nil || !msg.final() {
		return
	}

	c.mu.Lock()
	if c.status != StatusConnecting && c.status != StatusActive && !c.hookPending {
		status := c.status
		c.mu.Unlock()
		c.logger.Warn("dropping transcript outside an active call", "status", status, "role", msg.Role)
		return
	}
	c.messages = append(c.messages, Message{Role: msg.Role, Content: msg.Transcript})
	c.lastMessage = msg.Transcript
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) setSpeaking(speaking bool) {
	c.mu.Lock()
	if c.speaking == speaking {
		c.mu.Unlock()
		return
	}
	c.speaking = speaking
	c.mu.Unlock()

	c.notify()
}

// transition moves to `to` if the current status is one of from. FINISHED is
// never a valid source, so the call can enter it at most once.
func (c *Controller) transition(to Status, from ...Status) bool {
	c.mu.Lock()
	allowed := false
	for _, s := range from {
		if c.status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		c.mu.Unlock()
		return false
	}
	prev := c.status
	c.status = to
	if to == StatusFinished {
		c.hookPending = true
	}
	c.mu.Unlock()

	c.logger.Debug("call status changed", "from", prev, "to", to)
	c.notify()
	return true
}

// finish runs once, after the call enters FINISHED and the session has
// flushed, and decides where the user goes next.
func (c *Controller) finish(ctx context.Context) {
	c.mu.Lock()
	c.hookPending = false
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.props.Mode == ModeGenerate && (snap.InterviewID == "" || len(snap.Messages) == 0) {
		c.nav.Push(RouteHome)
		return
	}

	result, err := c.store.CreateFeedback(ctx, FeedbackRequest{
		InterviewID: snap.InterviewID,
		UserID:      c.props.UserID,
		Transcript:  snap.Messages,
		FeedbackID:  c.props.FeedbackID,
	})
	if err != nil || !result.Success || result.FeedbackID == "" {
		c.logger.Error("save feedback failed",
			"interview_id", snap.InterviewID,
			"success", result.Success,
			"error", err,
		)
		c.nav.Push(RouteHome)
		return
	}

	c.logger.Info("feedback saved", "interview_id", snap.InterviewID, "feedback_id", result.FeedbackID)
	c.nav.Push(FeedbackRoute(snap.InterviewID))
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:      c.status,
		Messages:    append([]Message(nil), c.messages...),
		Speaking:    c.speaking,
		LastMessage: c.lastMessage,
		InterviewID: c.interviewID,
		UserName:    c.props.UserName,
	}
}

// notify publishes the current state. Snapshots are taken under notifyMu, so
// observers never see an older state after a newer one.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	snap := c.snapshotLocked()
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// FormatQuestions renders questions as a newline-delimited bulleted block.
func FormatQuestions(questions []string) string {
	if len(questions) == 0 {
		return ""
	}
	lines := make([]string, len(questions))
	for i, q := range questions {
		lines[i] = "- " + q
	}
	return strings.Join(lines, "\n")
}
