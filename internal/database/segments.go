package database

import (
	"context"
	"fmt"
	"time"
)

// SegmentRow is the input for persisting one recognized speaker turn.
type SegmentRow struct {
	JobID      int64
	Speaker    string
	Text       string
	StartTime  float64
	EndTime    float64
	Confidence float64
	Language   string
}

// Segment is the transcript segment representation for API responses.
type Segment struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	StartTime  float64   `json:"start_time"`
	EndTime    float64   `json:"end_time"`
	Confidence float64   `json:"confidence"`
	Language   string    `json:"language,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InsertSegment persists one segment. Segments are immutable after creation.
func (db *DB) InsertSegment(ctx context.Context, row *SegmentRow) (int64, error) {
	if row.StartTime >= row.EndTime {
		return 0, fmt.Errorf("segment [%f-%f]: start_time must be before end_time", row.StartTime, row.EndTime)
	}

	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO transcript_segments (
			job_id, speaker, text, start_time, end_time, confidence, language
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		row.JobID, row.Speaker, row.Text, row.StartTime, row.EndTime,
		row.Confidence, row.Language,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert segment: %w", err)
	}
	return id, nil
}

// ListSegmentsByJob returns a job's segments ordered by start time. The list
// may be partial if the job failed mid-pipeline.
func (db *DB) ListSegmentsByJob(ctx context.Context, jobID int64) ([]Segment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, job_id, speaker, text, start_time, end_time, confidence, language, created_at
		FROM transcript_segments
		WHERE job_id = $1
		ORDER BY start_time, id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []Segment{}
	for rows.Next() {
		var s Segment
		if err := rows.Scan(
			&s.ID, &s.JobID, &s.Speaker, &s.Text, &s.StartTime, &s.EndTime,
			&s.Confidence, &s.Language, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}
