package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/sjawhar/ghost-interviewer/internal/call"
	"github.com/sjawhar/ghost-interviewer/internal/interview"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxBodyBytes bounds request bodies; a long interview transcript is well
// under this.
const maxBodyBytes = 4 << 20

// Records is the read side of the interview store.
type Records interface {
	GetInterview(id string) (storage.Interview, error)
	ListInterviewsByUser(userID string) ([]storage.Interview, error)
	GetFeedbackByInterview(interviewID, userID string) (storage.Feedback, error)
	GetTranscript(feedbackID string) ([]storage.TranscriptLine, error)
}

// Handler serves the persistence API on a fresh mux.
func Handler(persist call.Persistence, records Records) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, persist, records)
	return mux
}

func RegisterRoutes(mux *http.ServeMux, persist call.Persistence, records Records) {
	mux.HandleFunc("POST /api/interviews", func(w http.ResponseWriter, r *http.Request) {
		var req call.InterviewRequest
		if !decodeBody(w, r, &req) {
			return
		}

		result, err := persist.CreateInterview(r.Context(), req)
		if err != nil {
			slog.Error("create interview failed", "user_id", req.UserID, "error", err)
			writeFailure(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	})

	mux.HandleFunc("POST /api/feedback", func(w http.ResponseWriter, r *http.Request) {
		var req call.FeedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}

		result, err := persist.CreateFeedback(r.Context(), req)
		if err != nil {
			slog.Error("create feedback failed", "interview_id", req.InterviewID, "error", err)
			writeFailure(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	})

	mux.HandleFunc("GET /api/interviews/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusBadRequest, "invalid interview id")
			return
		}

		iv, err := records.GetInterview(id)
		if err != nil {
			writeJSONError(w, statusFor(err), fmt.Sprintf("get interview: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, iv)
	})

	mux.HandleFunc("GET /api/interviews/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusBadRequest, "invalid interview id")
			return
		}

		fb, err := records.GetFeedbackByInterview(id, r.URL.Query().Get("userId"))
		if err != nil {
			writeJSONError(w, statusFor(err), fmt.Sprintf("get feedback: %v", err))
			return
		}
		transcript, err := records.GetTranscript(fb.ID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get transcript: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"feedback":   fb,
			"transcript": transcript,
		})
	})

	mux.HandleFunc("GET /api/users/{id}/interviews", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		interviews, err := records.ListInterviewsByUser(id)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list interviews: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, interviews)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interview.ErrMissingUser),
		errors.Is(err, interview.ErrMissingInterview),
		errors.Is(err, interview.ErrEmptyTranscript):
		return http.StatusBadRequest
	case errors.Is(err, interview.ErrMalformedAssessment):
		return http.StatusBadGateway
	case errors.Is(err, interview.ErrNoAssessor):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func validID(id string) bool {
	return idPattern.MatchString(id)
}

// failure is the body of a failed create call.
type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeFailure(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, failure{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
