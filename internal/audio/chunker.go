package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultMaxChunkMB is the largest file sent to a provider without splitting.
const DefaultMaxChunkMB = 20.0

const bytesPerMB = 1024 * 1024

// ErrDecode means the input could not be read as audio or video.
var ErrDecode = errors.New("cannot decode media")

// Chunk is one contiguous time slice of the source media.
//
// When the source was small enough to pass through unsplit, the single
// chunk's Path is the source path itself and End is zero because the
// source was never decoded.
type Chunk struct {
	Path  string
	Index int
	Start time.Duration
	End   time.Duration
	Size  int64
}

// Span is a half-open [Start, End) interval of the source timeline.
type Span struct {
	Start time.Duration
	End   time.Duration
}

// Chunker splits media into size-bounded WAV chunks using ffprobe and ffmpeg.
type Chunker struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	runner      CommandRunner
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithCommandRunner replaces the process runner used for ffmpeg and ffprobe.
func WithCommandRunner(r CommandRunner) Option {
	return func(c *Chunker) { c.runner = r }
}

// WithTempDir sets the parent directory for chunk directories.
func WithTempDir(dir string) Option {
	return func(c *Chunker) { c.tempDir = dir }
}

// NewChunker creates a Chunker. Empty binary paths resolve through $PATH.
func NewChunker(ffmpegPath, ffprobePath string, opts ...Option) *Chunker {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	c := &Chunker{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      execRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SizeMB returns the size of path in binary megabytes.
func SizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / bytesPerMB, nil
}

// Split returns the chunks covering path in playback order. Files no larger
// than maxSizeMB come back as a single chunk pointing at path itself. Larger
// files are cut into floor(size/max)+1 equal-duration slices, which bounds
// chunk size only under a uniform bitrate. The caller removes the generated
// files and their directory.
func (c *Chunker) Split(ctx context.Context, path string, maxSizeMB float64) ([]Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	sizeMB := float64(info.Size()) / bytesPerMB
	if sizeMB <= maxSizeMB {
		return []Chunk{{Path: path, Index: 0, Size: info.Size()}}, nil
	}

	total, err := c.probeDuration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: zero duration", ErrDecode)
	}

	spans := PlanSpans(sizeMB, maxSizeMB, total)

	dir, err := os.MkdirTemp(c.tempDir, "chunks-*")
	if err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	chunks := make([]Chunk, 0, len(spans))
	for i, span := range spans {
		chunkPath := filepath.Join(dir, fmt.Sprintf("chunk_%03d.wav", i))
		if err := c.extract(ctx, path, chunkPath, span.Start, span.End); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrDecode, i, err)
		}

		var size int64
		if st, err := os.Stat(chunkPath); err == nil {
			size = st.Size()
		}

		chunks = append(chunks, Chunk{
			Path:  chunkPath,
			Index: i,
			Start: span.Start,
			End:   span.End,
			Size:  size,
		})
	}

	return chunks, nil
}

// PlanSpans divides total into floor(sizeMB/maxSizeMB)+1 slices of equal,
// millisecond-truncated length. Slices starting at or past total are dropped,
// and the last slice is stretched to total so the spans always partition
// [0, total) with no gap and no overlap.
func PlanSpans(sizeMB, maxSizeMB float64, total time.Duration) []Span {
	if total <= 0 {
		return nil
	}

	totalMs := total.Milliseconds()
	target := int64(sizeMB/maxSizeMB) + 1
	chunkMs := totalMs / target
	if chunkMs == 0 {
		return []Span{{Start: 0, End: total}}
	}

	spans := make([]Span, 0, target)
	for i := int64(0); i < target; i++ {
		startMs := i * chunkMs
		if startMs >= totalMs {
			break
		}
		endMs := min((i+1)*chunkMs, totalMs)
		spans = append(spans, Span{
			Start: time.Duration(startMs) * time.Millisecond,
			End:   time.Duration(endMs) * time.Millisecond,
		})
	}
	spans[len(spans)-1].End = total

	return spans
}
