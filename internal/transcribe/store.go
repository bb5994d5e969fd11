package transcribe

import (
	"context"

	"github.com/snarg/scribe-engine/internal/database"
)

// JobStore is the persistence surface the pipeline needs. *database.DB
// satisfies it; tests substitute an in-memory fake.
type JobStore interface {
	InsertJob(ctx context.Context, audioPath, originalName, language string) (*database.Job, error)
	GetJob(ctx context.Context, id int64) (*database.Job, error)
	MarkProcessing(ctx context.Context, id int64) error
	SetJobDuration(ctx context.Context, id int64, seconds float64) error
	SetJobSpeakerCount(ctx context.Context, id int64, n int) error
	CompleteJob(ctx context.Context, id int64) error
	FailJob(ctx context.Context, id int64, errMsg string) error
	InsertSegment(ctx context.Context, row *database.SegmentRow) (int64, error)
	ListSegmentsByJob(ctx context.Context, jobID int64) ([]database.Segment, error)
}

var _ JobStore = (*database.DB)(nil)
