package transcribe

import "strings"

// ValidationError rejects a request before any work is done.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// FailedError is returned for every failure after the upload was accepted.
// The cause (stt.ErrConfiguration, stt.ErrProvider, audio.ErrDecode, I/O)
// stays reachable through errors.Is and errors.As.
type FailedError struct {
	Err error
}

func (e *FailedError) Error() string { return "Transcription failed: " + e.Err.Error() }

func (e *FailedError) Unwrap() error { return e.Err }

// ValidateContentType accepts only audio/* and video/* uploads.
func ValidateContentType(contentType string) error {
	if contentType == "" || !(strings.HasPrefix(contentType, "audio/") || strings.HasPrefix(contentType, "video/")) {
		return &ValidationError{Msg: "File must be an audio or video file"}
	}
	return nil
}
