package transcribe

import (
	"strings"

	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

// Combine merges per-chunk results in chunk order.
//
// SRT results are concatenated as received, separated by a blank line. Cue
// numbers and timestamps are not rewritten, so every chunk after the first
// restarts near zero. All other formats are treated as plain text: each
// result is trimmed and the non-empty ones are joined with a single space.
func Combine(results []string, format stt.Format) string {
	if len(results) == 1 {
		return results[0]
	}

	if format == stt.FormatSRT {
		var b strings.Builder
		for _, r := range results {
			if strings.TrimSpace(r) == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(r)
		}
		return b.String()
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		if t := strings.TrimSpace(r); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
