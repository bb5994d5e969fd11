package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/metrics"
)

// ErrQueueFull means the job row was created but could not be enqueued.
// The job stays pending; the caller reports the backpressure.
var ErrQueueFull = errors.New("processing queue full")

// InvalidInputError rejects a submission before any job is created.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

// Enqueuer hands accepted jobs to the worker pool.
type Enqueuer interface {
	Enqueue(jobID int64) bool
}

// IntakeOptions configures the shared submission path used by the HTTP API
// and the watch-folder ingester.
type IntakeOptions struct {
	Store      JobStore
	Queue      Enqueuer
	AudioDir   string
	MaxBytes   int64
	Extensions map[string]bool // lowercase, without dot
	Log        zerolog.Logger
}

// Intake validates, stores, and enqueues submitted audio.
type Intake struct {
	opts IntakeOptions
	log  zerolog.Logger
}

func NewIntake(opts IntakeOptions) *Intake {
	return &Intake{opts: opts, log: opts.Log}
}

// Submit validates the upload, persists it under the audio dir, creates a
// pending job, and enqueues it. Validation failures return InvalidInputError
// with no job created. source labels the submission origin for metrics.
func (in *Intake) Submit(ctx context.Context, r io.Reader, originalName, language, source string) (*database.Job, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if ext == "" || !in.opts.Extensions[ext] {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("unsupported file extension %q", ext)}
	}

	storedName := uuid.NewString() + "." + ext
	dst := filepath.Join(in.opts.AudioDir, storedName)
	if err := in.save(r, dst); err != nil {
		return nil, err
	}

	job, err := in.opts.Store.InsertJob(ctx, storedName, originalName, language)
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.JobsSubmittedTotal.WithLabelValues(source).Inc()

	in.log.Info().
		Int64("job_id", job.ID).
		Str("original_name", originalName).
		Str("source", source).
		Msg("job submitted")

	if !in.opts.Queue.Enqueue(job.ID) {
		in.log.Warn().Int64("job_id", job.ID).Msg("queue full, job left pending")
		return job, ErrQueueFull
	}
	return job, nil
}

// SubmitFile submits an already-on-disk file, used by the watch folder.
func (in *Intake) SubmitFile(ctx context.Context, path, language, source string) (*database.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return in.Submit(ctx, f, filepath.Base(path), language, source)
}

// save copies the upload to dst, rejecting input over the size limit.
// Nothing is left on disk when save fails.
func (in *Intake) save(r io.Reader, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, in.opts.MaxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("store upload: %w", err)
	}
	if n > in.opts.MaxBytes {
		os.Remove(dst)
		return &InvalidInputError{Reason: fmt.Sprintf("file exceeds %d byte limit", in.opts.MaxBytes)}
	}
	if n == 0 {
		os.Remove(dst)
		return &InvalidInputError{Reason: "empty file"}
	}
	return nil
}
