package call

import (
	"context"
	"strings"
)

type Status string

const (
	StatusInactive   Status = "INACTIVE"
	StatusConnecting Status = "CONNECTING"
	StatusActive     Status = "ACTIVE"
	StatusFinished   Status = "FINISHED"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// Message is one finalized transcript line.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Mode selects how a call is started. In generate mode the interview record
// is created while the call starts; in fixed mode it already exists and the
// interviewer is given a prepared question list.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeFixed    Mode = "fixed"
)

type Props struct {
	UserName    string
	UserID      string
	InterviewID string
	FeedbackID  string
	Mode        Mode
	Questions   []string
}

// PlaceholderAssistantID is the value shipped in example configs.
const PlaceholderAssistantID = "PUT_YOUR_ASSISTANT_ID_HERE"

type AgentConfig struct {
	AssistantID string
	WorkflowID  string
}

func validAgentID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != PlaceholderAssistantID
}

type EventType string

const (
	EventCallStart   EventType = "call-start"
	EventCallEnd     EventType = "call-end"
	EventMessage     EventType = "message"
	EventSpeechStart EventType = "speech-start"
	EventSpeechEnd   EventType = "speech-end"
	EventError       EventType = "error"
)

const (
	MessageTypeTranscript = "transcript"

	TranscriptFinal   = "final"
	TranscriptPartial = "partial"
)

// TranscriptEvent is the payload of a message event.
type TranscriptEvent struct {
	Type           string `json:"type"`
	TranscriptType string `json:"transcriptType"`
	Role           Role   `json:"role"`
	Transcript     string `json:"transcript"`
}

func (t TranscriptEvent) final() bool {
	return t.Type == MessageTypeTranscript && t.TranscriptType == TranscriptFinal
}

type Event struct {
	Type    EventType
	Message *TranscriptEvent
	Err     error
}

type StartOptions struct {
	VariableValues map[string]string
}

// SessionClient opens and closes a real-time voice session with an agent.
type SessionClient interface {
	Start(ctx context.Context, agent string, opts *StartOptions) error
	Stop() error
	Subscribe(handler func(Event)) (unsubscribe func())
}

type InterviewRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Type   string `json:"type"`
}

type InterviewResult struct {
	Success     bool   `json:"success"`
	InterviewID string `json:"interviewId,omitempty"`
}

type FeedbackRequest struct {
	InterviewID string    `json:"interviewId"`
	UserID      string    `json:"userId"`
	Transcript  []Message `json:"transcript"`
	FeedbackID  string    `json:"feedbackId,omitempty"`
}

type FeedbackResult struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId,omitempty"`
}

// Persistence stores interview and feedback records.
type Persistence interface {
	CreateInterview(ctx context.Context, req InterviewRequest) (InterviewResult, error)
	CreateFeedback(ctx context.Context, req FeedbackRequest) (FeedbackResult, error)
}

type Navigator interface {
	Push(route string)
}

type Alerter interface {
	Alert(msg string)
}

// MicProber checks that the microphone can be opened. The device is released
// before Probe returns.
type MicProber interface {
	Probe(ctx context.Context) error
}

const RouteHome = "/"

func FeedbackRoute(interviewID string) string {
	return "/interview/" + interviewID + "/feedback"
}

// Snapshot is a point-in-time copy of controller state.
type Snapshot struct {
	Status      Status    `json:"status"`
	Messages    []Message `json:"messages"`
	Speaking    bool      `json:"speaking"`
	LastMessage string    `json:"last_message"`
	InterviewID string    `json:"interview_id"`
	UserName    string    `json:"user_name"`
}
