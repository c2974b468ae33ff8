package health

import (
	"fmt"
	"html"
	"net/http"

	"matchmaker-relay/liveness"
)

// StatusSource exposes the last known state of every monitored endpoint.
type StatusSource interface {
	Snapshot() map[string]liveness.Status
}

func Register(mux *http.ServeMux, name string, src StatusSource) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		snap := src.Snapshot()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "%s Status:<br>Matchmaker is Online!!!<br>Backend is %s<br>Gameserver is %s",
			html.EscapeString(name),
			describe(snap[liveness.BackendEndpoint]),
			describe(snap[liveness.GameEndpoint]),
		)
	})
}

func describe(s liveness.Status) string {
	if s == liveness.StatusUnknown {
		return "Not Detected (Probably OFF)"
	}
	return s.String()
}
