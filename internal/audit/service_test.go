package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
)

type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *float64:
			*p = row[i].(float64)
		}
	}
	return nil
}

type fakeDB struct {
	sql     string
	args    []any
	rows    [][]any
	execErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.sql, f.args = sql, args
	return &fakeRows{data: f.rows}, nil
}

func TestRecordTranscription(t *testing.T) {
	db := &fakeDB{}
	svc := NewService(db)

	err := svc.RecordTranscription(context.Background(), transcribe.UsageRecord{
		Subject:           "user-1",
		RequestedProvider: stt.Primary,
		Provider:          stt.Direct,
		Format:            stt.FormatSRT,
		Language:          "auto",
		Filename:          "talk.mp3",
		FileSizeMB:        45,
		Chunks:            3,
		Duration:          1500 * time.Millisecond,
		Status:            "completed",
	})
	if err != nil {
		t.Fatalf("RecordTranscription() error = %v", err)
	}

	if !strings.Contains(db.sql, "INSERT INTO transcription_usage") {
		t.Errorf("sql = %q", db.sql)
	}
	if len(db.args) != 12 {
		t.Fatalf("args = %d, want 12", len(db.args))
	}
	if db.args[1] != "user-1" || db.args[2] != "azure" || db.args[8] != 3 || db.args[9] != int64(1500) {
		t.Errorf("args = %v", db.args)
	}
	if p, ok := db.args[3].(*string); !ok || *p != "openai" {
		t.Errorf("provider arg = %v", db.args[3])
	}
	if e, ok := db.args[11].(*string); !ok || e != nil {
		t.Errorf("error arg = %v, want nil", db.args[11])
	}
}

func TestRecordTranscriptionFailureWithoutProvider(t *testing.T) {
	db := &fakeDB{}
	err := NewService(db).RecordTranscription(context.Background(), transcribe.UsageRecord{
		Subject: "user-1",
		Status:  "failed",
		Error:   "Transcription failed: no credentials",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := db.args[3].(*string); !ok || p != nil {
		t.Errorf("provider arg = %v, want nil", db.args[3])
	}
	if e, ok := db.args[11].(*string); !ok || *e != "Transcription failed: no credentials" {
		t.Errorf("error arg = %v", db.args[11])
	}
}

func TestRecordTranscriptionExecError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	err := NewService(db).RecordTranscription(context.Background(), transcribe.UsageRecord{})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error = %v", err)
	}
}

func TestGetUsageSummary(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{"azure", "completed", 4, 9, 120.5, 33.2},
		{"none", "failed", 1, 0, 2.0, 0.1},
	}}
	svc := NewService(db)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := svc.GetUsageSummary(context.Background(), "user-1", start, time.Time{})
	if err != nil {
		t.Fatalf("GetUsageSummary() error = %v", err)
	}
	if len(got) != 2 || got[0].Provider != "azure" || got[0].Requests != 4 || got[1].Status != "failed" {
		t.Errorf("summary = %+v", got)
	}
	if len(db.args) != 2 || !strings.Contains(db.sql, "created_at >= $2") || strings.Contains(db.sql, "created_at <=") {
		t.Errorf("sql = %q args = %v", db.sql, db.args)
	}
}
