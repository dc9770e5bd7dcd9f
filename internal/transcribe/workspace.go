package transcribe

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nikhilbhutani/whisperapi/internal/audio"
)

// workspace tracks the temporary files owned by one request. release is
// deferred right after creation so it runs on every exit path.
type workspace struct {
	upload string
	chunks []audio.Chunk
}

// release removes generated chunks, their directory when empty, and the
// persisted upload. Removal errors are logged and otherwise ignored.
func (w *workspace) release() {
	uploadDir := filepath.Dir(w.upload)

	for _, c := range w.chunks {
		if c.Path == w.upload {
			continue
		}
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			slog.Debug("cleanup: remove chunk", "path", c.Path, "error", err)
		}
		if dir := filepath.Dir(c.Path); w.upload == "" || dir != uploadDir {
			// fails harmlessly while other chunks remain
			_ = os.Remove(dir)
		}
	}

	if w.upload == "" {
		return
	}
	if err := os.Remove(w.upload); err != nil && !os.IsNotExist(err) {
		slog.Debug("cleanup: remove upload", "path", w.upload, "error", err)
	}
}
