package httpserver

import (
	"log/slog"
	"net/http"
	"strings"
)

// NewCheckOrigin returns a CheckOrigin function for the subscriber upgrader.
// Requests without an Origin header (non-browser clients) are always accepted. An empty
// allow-list accepts every origin, matching the service's historic behaviour.
func NewCheckOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}

		if _, ok := set[strings.TrimRight(strings.ToLower(origin), "/")]; ok {
			return true
		}

		slog.Warn("Subscriber origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}
