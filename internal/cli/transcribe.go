package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/whisperapi/internal/audio"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe a local audio or video file",
	Long: `Run a file through the transcription pipeline without the HTTP server.

Examples:
  whisperctl transcribe meeting.mp3
  whisperctl transcribe lecture.m4a --format srt --language fi --content-only > lecture.srt
  whisperctl transcribe clip.bin --content-type video/mp4 --provider openai`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

// Flags
var (
	transcribeFormat      string
	transcribeLanguage    string
	transcribeProvider    string
	transcribeContentType string
	transcribeContentOnly bool
)

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringVar(&transcribeFormat, "format", "text", "Output format: text, srt, vtt, json, verbose_json")
	transcribeCmd.Flags().StringVar(&transcribeLanguage, "language", "", "Language code (fi, en, sv, ...); empty to auto-detect")
	transcribeCmd.Flags().StringVar(&transcribeProvider, "provider", "azure", "Provider: azure (falls back to openai) or openai")
	transcribeCmd.Flags().StringVar(&transcribeContentType, "content-type", "", "Override the media type guessed from the extension")
	transcribeCmd.Flags().BoolVar(&transcribeContentOnly, "content-only", false, "Print only the transcript instead of the full JSON response")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	format, err := stt.ParseFormat(transcribeFormat)
	if err != nil {
		return err
	}
	provider, err := stt.ParseVariant(transcribeProvider)
	if err != nil {
		return err
	}

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	cfg := appConfig.Transcribe
	chunker := audio.NewChunker(cfg.FFmpegPath, cfg.FFprobePath, audio.WithTempDir(cfg.TempDir))
	selector := stt.NewSelector(stt.EnvCredentials, &http.Client{Timeout: 10 * time.Minute})
	svc := transcribe.NewService(chunker, selector, cfg.TempDir)

	resp, err := svc.Transcribe(cmd.Context(), transcribe.Request{
		File:        f,
		ContentType: contentTypeFor(path, transcribeContentType),
		Filename:    filepath.Base(path),
		Language:    transcribeLanguage,
		Format:      format,
		Provider:    provider,
		Subject:     "whisperctl",
	})
	if err != nil {
		return err
	}

	return writeResult(cmd.OutOrStdout(), resp, transcribeContentOnly)
}

func writeResult(w io.Writer, resp *transcribe.Response, contentOnly bool) error {
	if contentOnly {
		_, err := fmt.Fprintln(w, resp.Content)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// mediaTypes covers the formats Whisper accepts; the system mime table often
// lacks them.
var mediaTypes = map[string]string{
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpga": "audio/mpeg",
	".oga":  "audio/ogg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".webm": "video/webm",
}

func contentTypeFor(path, override string) string {
	if override != "" {
		return override
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
