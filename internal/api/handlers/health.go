package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type clientSelector interface {
	Select(preference stt.Variant) (stt.Client, error)
}

type HealthHandler struct {
	version  string
	selector clientSelector
	checks   map[string]Pinger
}

// NewHealthHandler reports on the given dependencies; nil pingers are skipped
// so optional backends (the usage database) can be left out.
func NewHealthHandler(version string, selector clientSelector, checks map[string]Pinger) *HealthHandler {
	active := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			active[name] = p
		}
	}
	return &HealthHandler{version: version, selector: selector, checks: active}
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Whisper API is running",
		"version": h.version,
	})
}

// Health reports whether a transcription client can be built from the
// current credentials. It always answers 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.selector.Select(stt.Primary); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "unhealthy",
			"openai_configured": false,
			"error":             err.Error(),
			"version":           h.version,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"openai_configured": true,
		"version":           h.version,
	})
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK

	for name, p := range h.checks {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}

	writeJSON(w, status, map[string]any{"status": statusStr(status), "checks": checks})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
