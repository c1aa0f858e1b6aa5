package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sjawhar/ghost-interviewer/internal/call"
	"github.com/sjawhar/ghost-interviewer/internal/llm"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

var ErrMalformedAssessment = errors.New("malformed assessment")

// Categories are the fixed scoring areas, in display order.
var Categories = []string{
	"Communication Skills",
	"Technical Knowledge",
	"Problem Solving",
	"Cultural Fit",
	"Confidence and Clarity",
}

type Assessment struct {
	TotalScore          int                     `json:"totalScore"`
	CategoryScores      []storage.CategoryScore `json:"categoryScores"`
	Strengths           []string                `json:"strengths"`
	AreasForImprovement []string                `json:"areasForImprovement"`
	FinalAssessment     string                  `json:"finalAssessment"`
}

const systemPrompt = "You are a professional interviewer analyzing a mock interview. Your task is to evaluate the candidate based on structured categories."

const userTemplate = `You are an AI interviewer analyzing a mock interview. Evaluate the candidate thoroughly and in detail. Don't be lenient with the candidate. If there are mistakes or areas for improvement, point them out.

Transcript:
{{transcript}}

Score the candidate from 0 to 100 in exactly these categories, in this order, and add no others:
- Communication Skills: clarity, articulation, structured responses.
- Technical Knowledge: understanding of key concepts for the role.
- Problem Solving: ability to analyze problems and propose solutions.
- Cultural Fit: alignment with company values and the job role.
- Confidence and Clarity: confidence in responses, engagement, and clarity.

Reply with a single JSON object with the keys totalScore (integer), categoryScores (array of {name, score, comment}), strengths (array of strings), areasForImprovement (array of strings) and finalAssessment (string).`

// FormatTranscript renders one "- role: content" line per message.
func FormatTranscript(messages []call.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "- %s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// Generator turns an interview transcript into an Assessment with an LLM.
type Generator struct {
	client llm.Client
}

func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Assess(ctx context.Context, transcript string) (Assessment, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: strings.ReplaceAll(userTemplate, "{{transcript}}", transcript)},
	}

	raw, err := g.client.Complete(ctx, messages)
	if err != nil {
		return Assessment{}, fmt.Errorf("assess transcript: %w", err)
	}
	return ParseAssessment(raw)
}

// ParseAssessment decodes a model reply, tolerating a surrounding markdown
// code fence. Scores are clamped to 0..100.
func ParseAssessment(raw string) (Assessment, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(body, "```")
		body = strings.TrimSpace(body)
	}

	var a Assessment
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return Assessment{}, fmt.Errorf("%w: %w", ErrMalformedAssessment, err)
	}
	if len(a.CategoryScores) == 0 {
		return Assessment{}, fmt.Errorf("%w: no category scores", ErrMalformedAssessment)
	}

	a.TotalScore = clampScore(a.TotalScore)
	for i := range a.CategoryScores {
		a.CategoryScores[i].Score = clampScore(a.CategoryScores[i].Score)
	}
	if a.Strengths == nil {
		a.Strengths = []string{}
	}
	if a.AreasForImprovement == nil {
		a.AreasForImprovement = []string{}
	}
	return a, nil
}

func clampScore(score int) int {
	return min(max(score, 0), 100)
}
