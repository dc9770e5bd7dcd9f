package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nikhilbhutani/whisperapi/internal/audit"
	"github.com/nikhilbhutani/whisperapi/internal/auth"
)

type usageReader interface {
	GetUsageSummary(ctx context.Context, subject string, start, end time.Time) ([]audit.UsageSummary, error)
}

type UsageHandler struct {
	audit usageReader
}

func NewUsageHandler(a usageReader) *UsageHandler {
	return &UsageHandler{audit: a}
}

// Usage summarises the caller's own requests, optionally bounded by
// start_date and end_date (RFC 3339).
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	var start, end time.Time
	for name, dst := range map[string]*time.Time{"start_date": &start, "end_date": &end} {
		s := r.URL.Query().Get(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, name+" must be an RFC 3339 timestamp")
			return
		}
		*dst = t
	}

	summary, err := h.audit.GetUsageSummary(r.Context(), auth.SubjectFromContext(r.Context()), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"usage": summary})
}
