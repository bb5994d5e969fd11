package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Job statuses. Transitions are monotonic:
// pending → processing → {completed, failed}.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("job not found")

// TransitionError reports a rejected job status transition.
type TransitionError struct {
	JobID int64
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %d: invalid status transition %s → %s", e.JobID, e.From, e.To)
}

// Job is one submitted audio-to-transcript request.
type Job struct {
	ID           int64      `json:"id"`
	AudioPath    string     `json:"-"` // opaque reference, relative to the audio dir
	OriginalName string     `json:"original_name,omitempty"`
	Status       string     `json:"status"`
	Language     string     `json:"language"`
	Duration     *float64   `json:"duration"`
	SpeakerCount *int       `json:"speaker_count"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const jobColumns = `id, audio_path, original_name, status, language,
	duration, speaker_count, error_message, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.AudioPath, &j.OriginalName, &j.Status, &j.Language,
		&j.Duration, &j.SpeakerCount, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// InsertJob creates a new job in the pending state.
func (db *DB) InsertJob(ctx context.Context, audioPath, originalName, language string) (*Job, error) {
	if language == "" {
		language = "auto"
	}
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO transcription_jobs (audio_path, original_name, language)
		VALUES ($1, $2, $3)
		RETURNING `+jobColumns,
		audioPath, originalName, language,
	)
	return scanJob(row)
}

// GetJob returns a single job by id.
func (db *DB) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM transcription_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ListJobs returns jobs newest-first with the total count.
func (db *DB) ListJobs(ctx context.Context, limit, offset int) ([]Job, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM transcription_jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM transcription_jobs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, total, rows.Err()
}

// MarkProcessing transitions a job from pending to processing.
// Returns a TransitionError if the job is not pending.
func (db *DB) MarkProcessing(ctx context.Context, id int64) error {
	return db.transition(ctx, id, StatusProcessing, `
		UPDATE transcription_jobs
		SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`)
}

// SetJobDuration records the audio duration once preprocessing has measured it.
func (db *DB) SetJobDuration(ctx context.Context, id int64, seconds float64) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE transcription_jobs
		SET duration = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, seconds)
	return err
}

// SetJobSpeakerCount records the distinct speaker count once diarization completes.
func (db *DB) SetJobSpeakerCount(ctx context.Context, id int64, n int) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE transcription_jobs
		SET speaker_count = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, n)
	return err
}

// CompleteJob transitions a processing job to the completed terminal state.
func (db *DB) CompleteJob(ctx context.Context, id int64) error {
	return db.transition(ctx, id, StatusCompleted, `
		UPDATE transcription_jobs
		SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`)
}

// FailJob transitions a processing job to the failed terminal state and
// records the error message. Segments already persisted are left in place.
func (db *DB) FailJob(ctx context.Context, id int64, errMsg string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE transcription_jobs
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.transitionRejected(ctx, id, StatusFailed)
	}
	return nil
}

func (db *DB) transition(ctx context.Context, id int64, to, query string) error {
	tag, err := db.Pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.transitionRejected(ctx, id, to)
	}
	return nil
}

func (db *DB) transitionRejected(ctx context.Context, id int64, to string) error {
	job, err := db.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return &TransitionError{JobID: id, From: job.Status, To: to}
}
