package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/ghost-interviewer/internal/call"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

var (
	ErrMissingUser      = errors.New("user id is required")
	ErrMissingInterview = errors.New("interview id is required")
	ErrEmptyTranscript  = errors.New("transcript is empty")
	ErrNoAssessor       = errors.New("feedback generation is not configured")
)

type Store interface {
	CreateInterview(iv storage.Interview) error
	GetInterview(id string) (storage.Interview, error)
	SaveFeedback(fb storage.Feedback, transcript []storage.TranscriptLine) error
}

type Assessor interface {
	Assess(ctx context.Context, transcript string) (Assessment, error)
}

type Archive interface {
	Write(interviewID string, at time.Time, lines []storage.TranscriptLine) error
}

// Service is the persistence backend for calls: it records interviews and
// turns finished transcripts into stored feedback. It implements
// call.Persistence.
type Service struct {
	store    Store
	assessor Assessor
	archive  Archive

	newID func() string
	now   func() time.Time
}

// NewService wires the store and assessor. archive may be nil; a nil
// assessor makes CreateFeedback fail with ErrNoAssessor.
func NewService(store Store, assessor Assessor, archive Archive) *Service {
	return &Service{
		store:    store,
		assessor: assessor,
		archive:  archive,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

func (s *Service) CreateInterview(_ context.Context, req call.InterviewRequest) (call.InterviewResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return call.InterviewResult{}, ErrMissingUser
	}

	iv := storage.Interview{
		ID:        s.newID(),
		UserID:    req.UserID,
		Role:      req.Role,
		Type:      req.Type,
		Finalized: true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateInterview(iv); err != nil {
		return call.InterviewResult{}, fmt.Errorf("store interview: %w", err)
	}

	slog.Info("interview created", "interview_id", iv.ID, "user_id", iv.UserID)
	return call.InterviewResult{Success: true, InterviewID: iv.ID}, nil
}

// CreateFeedback assesses the transcript once and stores the result. A
// non-empty FeedbackID overwrites that record.
func (s *Service) CreateFeedback(ctx context.Context, req call.FeedbackRequest) (call.FeedbackResult, error) {
	if strings.TrimSpace(req.InterviewID) == "" {
		return call.FeedbackResult{}, ErrMissingInterview
	}
	if strings.TrimSpace(req.UserID) == "" {
		return call.FeedbackResult{}, ErrMissingUser
	}
	if len(req.Transcript) == 0 {
		return call.FeedbackResult{}, ErrEmptyTranscript
	}
	if s.assessor == nil {
		return call.FeedbackResult{}, ErrNoAssessor
	}
	if _, err := s.store.GetInterview(req.InterviewID); err != nil {
		return call.FeedbackResult{}, fmt.Errorf("load interview: %w", err)
	}

	assessment, err := s.assessor.Assess(ctx, FormatTranscript(req.Transcript))
	if err != nil {
		return call.FeedbackResult{}, err
	}

	id := req.FeedbackID
	if id == "" {
		id = s.newID()
	}
	now := s.now().UTC()
	fb := storage.Feedback{
		ID:                  id,
		InterviewID:         req.InterviewID,
		UserID:              req.UserID,
		TotalScore:          assessment.TotalScore,
		CategoryScores:      assessment.CategoryScores,
		Strengths:           assessment.Strengths,
		AreasForImprovement: assessment.AreasForImprovement,
		FinalAssessment:     assessment.FinalAssessment,
		CreatedAt:           now,
	}

	lines := make([]storage.TranscriptLine, len(req.Transcript))
	for i, m := range req.Transcript {
		lines[i] = storage.TranscriptLine{Role: string(m.Role), Content: m.Content}
	}

	if err := s.store.SaveFeedback(fb, lines); err != nil {
		return call.FeedbackResult{}, fmt.Errorf("store feedback: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.Write(req.InterviewID, now, lines); err != nil {
			slog.Warn("transcript archive failed", "interview_id", req.InterviewID, "error", err)
		}
	}

	slog.Info("feedback stored", "interview_id", req.InterviewID, "feedback_id", id, "total_score", fb.TotalScore)
	return call.FeedbackResult{Success: true, FeedbackID: id}, nil
}

var _ call.Persistence = (*Service)(nil)
