package interview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sjawhar/ghost-interviewer/internal/call"
	"github.com/sjawhar/ghost-interviewer/internal/llm"
)

type mockLLMClient struct {
	calls        int
	response     string
	err          error
	lastMessages []llm.Message
}

func (m *mockLLMClient) Complete(_ context.Context, messages []llm.Message) (string, error) {
	m.calls++
	m.lastMessages = append([]llm.Message(nil), messages...)
	return m.response, m.err
}

const validAssessment = `{
	"totalScore": 78,
	"categoryScores": [
		{"name": "Communication Skills", "score": 85, "comment": "Clear."},
		{"name": "Technical Knowledge", "score": 140, "comment": "Deep."},
		{"name": "Problem Solving", "score": -3, "comment": "Stalled."}
	],
	"strengths": ["Structured answers"],
	"finalAssessment": "Solid candidate."
}`

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript([]call.Message{
		{Role: call.RoleAssistant, Content: "Hello"},
		{Role: call.RoleUser, Content: "Hi there"},
	})
	want := "- assistant: Hello\n- user: Hi there\n"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestGeneratorAssessSendsTranscript(t *testing.T) {
	client := &mockLLMClient{response: validAssessment}
	g := NewGenerator(client)

	a, err := g.Assess(context.Background(), "- user: I build APIs in Go\n")
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single LLM call, got %d", client.calls)
	}
	if len(client.lastMessages) != 2 || client.lastMessages[0].Role != "system" {
		t.Fatalf("unexpected prompt messages %#v", client.lastMessages)
	}
	if !strings.Contains(client.lastMessages[1].Content, "- user: I build APIs in Go") {
		t.Fatalf("expected transcript in user prompt, got %q", client.lastMessages[1].Content)
	}
	if a.TotalScore != 78 || a.FinalAssessment != "Solid candidate." {
		t.Fatalf("unexpected assessment %#v", a)
	}
}

func TestGeneratorDoesNotRetry(t *testing.T) {
	client := &mockLLMClient{err: errors.New("rate limited")}
	g := NewGenerator(client)

	if _, err := g.Assess(context.Background(), "- user: hi\n"); err == nil {
		t.Fatal("expected error")
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", client.calls)
	}
}

func TestParseAssessmentClampsAndDefaults(t *testing.T) {
	a, err := ParseAssessment("```json\n" + validAssessment + "\n```")
	if err != nil {
		t.Fatalf("ParseAssessment failed: %v", err)
	}
	if a.CategoryScores[1].Score != 100 || a.CategoryScores[2].Score != 0 {
		t.Fatalf("expected scores clamped, got %#v", a.CategoryScores)
	}
	if a.AreasForImprovement == nil {
		t.Fatal("expected missing list to default to empty")
	}
}

func TestParseAssessmentRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"not json", `{"totalScore": 50}`} {
		if _, err := ParseAssessment(raw); !errors.Is(err, ErrMalformedAssessment) {
			t.Fatalf("expected ErrMalformedAssessment for %q, got %v", raw, err)
		}
	}
}
