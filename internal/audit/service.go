package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service writes one row per transcription request to transcription_usage.
type Service struct {
	db db
}

func NewService(db db) *Service {
	return &Service{db: db}
}

func (s *Service) RecordTranscription(ctx context.Context, rec transcribe.UsageRecord) error {
	var errMsg *string
	if rec.Error != "" {
		errMsg = &rec.Error
	}
	var provider *string
	if rec.Provider != "" {
		p := string(rec.Provider)
		provider = &p
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO transcription_usage (id, subject, requested_provider, provider, format, language, filename, file_size_mb, chunks, duration_ms, status, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.New(), rec.Subject, string(rec.RequestedProvider), provider, string(rec.Format), rec.Language,
		rec.Filename, rec.FileSizeMB, rec.Chunks, rec.Duration.Milliseconds(), rec.Status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("insert transcription usage: %w", err)
	}
	return nil
}

type UsageSummary struct {
	Provider      string  `json:"provider"`
	Status        string  `json:"status"`
	Requests      int     `json:"requests"`
	Chunks        int     `json:"chunks"`
	TotalSizeMB   float64 `json:"total_size_mb"`
	TotalDuration float64 `json:"total_duration_seconds"`
}

// GetUsageSummary aggregates a subject's requests per provider and status.
// Zero times leave that side of the window open.
func (s *Service) GetUsageSummary(ctx context.Context, subject string, start, end time.Time) ([]UsageSummary, error) {
	query := `SELECT COALESCE(provider, 'none'), status, COUNT(*), COALESCE(SUM(chunks), 0),
				COALESCE(SUM(file_size_mb), 0), COALESCE(SUM(duration_ms), 0) / 1000.0
			  FROM transcription_usage WHERE subject = $1`
	args := []any{subject}
	argIdx := 2

	if !start.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, start)
		argIdx++
	}
	if !end.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, end)
	}
	query += " GROUP BY 1, 2 ORDER BY 1, 2"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	summaries := []UsageSummary{}
	for rows.Next() {
		var u UsageSummary
		if err := rows.Scan(&u.Provider, &u.Status, &u.Requests, &u.Chunks, &u.TotalSizeMB, &u.TotalDuration); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage summary: %w", err)
	}
	return summaries, nil
}
