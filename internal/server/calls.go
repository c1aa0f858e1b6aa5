package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/sjawhar/ghost-interviewer/internal/call"
)

// CallControl is the call controller as seen by the browser.
type CallControl interface {
	Start(ctx context.Context) error
	End(ctx context.Context) error
	Snapshot() call.Snapshot
}

func registerCallRoutes(mux *http.ServeMux, ctrl CallControl) {
	mux.HandleFunc("GET /api/call", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, call.Render(ctrl.Snapshot()))
	})

	// Start and End outlive the request: a browser that navigates away must
	// not cancel interview creation or feedback generation.
	mux.HandleFunc("POST /api/call/start", func(w http.ResponseWriter, r *http.Request) {
		err := ctrl.Start(context.WithoutCancel(r.Context()))
		switch {
		case errors.Is(err, call.ErrCallInProgress):
			writeJSONError(w, http.StatusConflict, err.Error())
		case err != nil:
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeJSON(w, http.StatusOK, call.Render(ctrl.Snapshot()))
		}
	})

	mux.HandleFunc("POST /api/call/end", func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.End(context.WithoutCancel(r.Context())); err != nil {
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, call.Render(ctrl.Snapshot()))
	})
}

// registerBackendProxy forwards interview reads to the persistence API so
// the feedback page can load from the same origin.
func registerBackendProxy(mux *http.ServeMux, backend *url.URL) {
	proxy := httputil.NewSingleHostReverseProxy(backend)
	mux.Handle("GET /api/interviews/", proxy)
	mux.Handle("GET /api/users/", proxy)
}
