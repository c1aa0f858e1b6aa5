package call

import (
	"errors"
	"strings"
)

var (
	ErrCallInProgress     = errors.New("call already started")
	ErrMicrophoneDenied   = errors.New("microphone permission denied")
	ErrNotSignedIn        = errors.New("user id is required")
	ErrAgentConfig        = errors.New("agent configuration missing")
	ErrInterviewNotStored = errors.New("interview creation failed")
	ErrSessionStart       = errors.New("session start failed")
)

// RemoteError is an error reported by the session client. Cause holds the
// nested error object some agents attach.
type RemoteError struct {
	Message string       `json:"message"`
	Cause   *RemoteError `json:"error,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Cause == nil || e.Cause.Message == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Message
	}
	return e.Message + ": " + e.Cause.Message
}

func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func sessionErrorAlert(err error) string {
	msg := "Call error occurred. "
	var remote *RemoteError
	if errors.As(err, &remote) {
		msg += remote.Message
		if remote.Cause != nil {
			msg += remote.Cause.Message
		}
	} else {
		msg += errorDetail(err)
	}
	return msg + " Check console for details."
}

func startErrorAlert(err error) string {
	detail := errorDetail(err)
	if detail == "" {
		detail = "Check console for details."
	}
	return "Could not start the call. " + detail
}

const (
	alertMicrophone       = "Microphone permission is required to start the interview. Please allow access and try again."
	alertNotSignedIn      = "You must be logged in to start an interview. Please sign in."
	alertAgentConfig      = "Assistant configuration error. Please contact support."
	alertInterviewFailed  = "Failed to create interview. Please check your connection and try again."
	alertInterviewErrored = "Failed to create interview: "
)
