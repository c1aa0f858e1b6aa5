package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
)

type Options struct {
	StaticFS fs.FS
	Hub      *Hub
	Call     CallControl
	// Backend is the persistence API; interview reads are proxied to it
	// when set.
	Backend *url.URL
}

func Handler(opts Options) (http.Handler, error) {
	if opts.StaticFS == nil || opts.Hub == nil || opts.Call == nil {
		return nil, errors.New("server: static files, hub and call are required")
	}

	mux := http.NewServeMux()

	registerWSRoute(mux, opts.Hub)
	registerCallRoutes(mux, opts.Call)
	if opts.Backend != nil {
		registerBackendProxy(mux, opts.Backend)
	}

	fileServer := http.FileServer(http.FS(opts.StaticFS))
	mux.HandleFunc("/", serveSPA(opts.StaticFS, fileServer))

	return mux, nil
}

// serveSPA serves static assets and falls back to index.html for client
// routes such as /interview/{id}/feedback.
func serveSPA(staticFS fs.FS, fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			http.NotFound(w, r)
			return
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			http.ServeFileFS(w, r, staticFS, "index.html")
			return
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
