package transcribe

import (
	"testing"

	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		results []string
		format  stt.Format
		want    string
	}{
		{"srt drops blank entries", []string{"", "A", "  ", "B"}, stt.FormatSRT, "A\n\nB"},
		{"srt keeps entries verbatim", []string{"1\nx\n", "1\ny\n"}, stt.FormatSRT, "1\nx\n\n\n1\ny\n"},
		{"srt all blank", []string{" ", "\n"}, stt.FormatSRT, ""},
		{"text trims and joins", []string{" a ", "b "}, stt.FormatText, "a b"},
		{"text drops empties", []string{"a", "   ", "", "b"}, stt.FormatText, "a b"},
		{"vtt treated as text", []string{"WEBVTT\n\nx ", " WEBVTT\n\ny"}, stt.FormatVTT, "WEBVTT\n\nx WEBVTT\n\ny"},
		{"json treated as text", []string{`{"text":"a"}`, `{"text":"b"}`}, stt.FormatJSON, `{"text":"a"} {"text":"b"}`},
		{"no results", nil, stt.FormatText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Combine(tt.results, tt.format); got != tt.want {
				t.Errorf("Combine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCombineSingleResultIsVerbatim(t *testing.T) {
	formats := []stt.Format{stt.FormatText, stt.FormatSRT, stt.FormatVTT, stt.FormatJSON, stt.FormatVerboseJSON}
	for _, f := range formats {
		in := "  padded result \n"
		if got := Combine([]string{in}, f); got != in {
			t.Errorf("Combine([x], %s) = %q, want %q", f, got, in)
		}
	}
}
