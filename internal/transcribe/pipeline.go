// Package transcribe runs submitted jobs through the full pipeline:
// decode, diarize, per-turn recognition, ordered segment persistence.
package transcribe

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/audio"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/diarize"
	"github.com/snarg/scribe-engine/internal/metrics"
	"github.com/snarg/scribe-engine/internal/models"
)

// ModelSource hands out the initialized model bundle. *models.Provider
// satisfies it.
type ModelSource interface {
	Acquire(ctx context.Context) (*models.Bundle, error)
}

// EventPublishFunc is a callback for publishing job lifecycle events.
type EventPublishFunc func(event string, payload map[string]any)

// CompletionFunc runs after a job completes, with its final segment list.
type CompletionFunc func(ctx context.Context, job *database.Job, segments []database.Segment)

// PipelineOptions configures the job pipeline.
type PipelineOptions struct {
	Store        JobStore
	Models       ModelSource
	AudioDir     string // root for stored uploads; job audio paths are relative to it
	WorkDir      string // scratch space for intermediate WAV files
	Diarization  diarize.Options
	PublishEvent EventPublishFunc
	OnComplete   CompletionFunc
	Log          zerolog.Logger
}

// Pipeline executes one job at a time per worker. Segments are persisted as
// each turn is recognized, so a mid-pipeline failure keeps everything written
// so far.
type Pipeline struct {
	store  JobStore
	models ModelSource
	opts   PipelineOptions
	log    zerolog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	return &Pipeline{
		store:  opts.Store,
		models: opts.Models,
		opts:   opts,
		log:    opts.Log,
	}
}

// Process runs a pending job to a terminal state. The returned error is the
// processing failure, if any; the job row is always left completed or failed.
func (p *Pipeline) Process(ctx context.Context, jobID int64) error {
	log := p.log.With().Int64("job_id", jobID).Logger()
	start := time.Now()

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %d: %w", jobID, err)
	}
	if err := p.store.MarkProcessing(ctx, jobID); err != nil {
		return err
	}

	if err := p.run(ctx, log, job); err != nil {
		p.fail(ctx, log, jobID, err)
		return err
	}

	if err := p.store.CompleteJob(ctx, jobID); err != nil {
		return err
	}
	metrics.JobsFinishedTotal.WithLabelValues("completed").Inc()

	segments, err := p.store.ListSegmentsByJob(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Msg("completed job but could not reload segments for hooks")
		segments = nil
	}
	if done, err := p.store.GetJob(ctx, jobID); err == nil {
		job = done
	}
	if p.opts.OnComplete != nil {
		p.opts.OnComplete(ctx, job, segments)
	}
	p.publish("job_completed", map[string]any{
		"job_id":   jobID,
		"segments": len(segments),
		"duration": time.Since(start).Seconds(),
	})

	log.Info().Int("segments", len(segments)).Dur("elapsed", time.Since(start)).Msg("job completed")
	return nil
}

func (p *Pipeline) run(ctx context.Context, log zerolog.Logger, job *database.Job) error {
	stage := time.Now()
	decoded, err := audio.Decode(ctx, filepath.Join(p.opts.AudioDir, job.AudioPath))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	buf := audio.Normalize(decoded)
	metrics.StageDuration.WithLabelValues("decode").Observe(time.Since(stage).Seconds())

	if len(buf.Samples) == 0 {
		return fmt.Errorf("decode: %q contains no audio", job.OriginalName)
	}
	if err := p.store.SetJobDuration(ctx, job.ID, buf.Duration()); err != nil {
		return err
	}

	bundle, err := p.models.Acquire(ctx)
	if err != nil {
		metrics.ModelInitTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("models: %w", err)
	}
	metrics.ModelInitTotal.WithLabelValues("ok").Inc()

	wavPath, cleanup, err := audio.TempWAV(p.opts.WorkDir, buf.Samples, buf.SampleRate)
	if err != nil {
		return fmt.Errorf("write working audio: %w", err)
	}
	defer cleanup()

	stage = time.Now()
	turns, err := bundle.Diarize(ctx, wavPath, p.opts.Diarization)
	if err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("diarization").Observe(time.Since(stage).Seconds())

	speakers := map[string]struct{}{}
	for _, t := range turns {
		speakers[t.Speaker] = struct{}{}
	}
	if err := p.store.SetJobSpeakerCount(ctx, job.ID, len(speakers)); err != nil {
		return err
	}
	log.Debug().Int("turns", len(turns)).Int("speakers", len(speakers)).Msg("diarization complete")

	language := job.Language
	if language == "auto" {
		language = ""
	}

	// Turns are recognized strictly in diarization order and each segment is
	// written before the next turn starts.
	stage = time.Now()
	for i, turn := range turns {
		if err := p.recognizeTurn(ctx, bundle, buf, job.ID, language, turn); err != nil {
			return fmt.Errorf("turn %d [%0.2f-%0.2f]: %w", i, turn.Start, turn.End, err)
		}
	}
	metrics.StageDuration.WithLabelValues("recognition").Observe(time.Since(stage).Seconds())

	return nil
}

// recognizeTurn transcribes one diarized interval and persists its segment.
// The per-turn scratch WAV is removed on every path.
func (p *Pipeline) recognizeTurn(ctx context.Context, bundle *models.Bundle, buf *audio.Buffer, jobID int64, language string, turn diarize.Turn) error {
	samples := buf.Slice(turn.Start, turn.End)
	if len(samples) == 0 {
		return nil // turn lies outside the decoded audio
	}

	wavPath, cleanup, err := audio.TempWAV(p.opts.WorkDir, samples, buf.SampleRate)
	if err != nil {
		return fmt.Errorf("write turn audio: %w", err)
	}
	defer cleanup()

	result, err := bundle.Recognize(ctx, wavPath, language)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil // silence or non-speech, nothing to persist
	}

	_, err = p.store.InsertSegment(ctx, &database.SegmentRow{
		JobID:      jobID,
		Speaker:    SpeakerLabel(turn.Speaker),
		Text:       text,
		StartTime:  turn.Start,
		EndTime:    turn.End,
		Confidence: result.Confidence,
		Language:   result.Language,
	})
	if err != nil {
		return err
	}
	metrics.SegmentsWrittenTotal.Inc()
	return nil
}

func (p *Pipeline) fail(ctx context.Context, log zerolog.Logger, jobID int64, cause error) {
	metrics.JobsFinishedTotal.WithLabelValues("failed").Inc()
	log.Error().Err(cause).Msg("job failed")

	if err := p.store.FailJob(ctx, jobID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("could not record job failure")
	}
	p.publish("job_failed", map[string]any{
		"job_id": jobID,
		"error":  cause.Error(),
	})
}

func (p *Pipeline) publish(event string, payload map[string]any) {
	if p.opts.PublishEvent != nil {
		p.opts.PublishEvent(event, payload)
	}
}

// SpeakerLabel normalizes a diarizer speaker id to the SPEAKER_NN form.
// pyannote emits labels like "SPEAKER_00" which pass through unchanged.
func SpeakerLabel(raw string) string {
	if idx := strings.LastIndex(raw, "_"); idx >= 0 {
		return "SPEAKER_" + raw[idx+1:]
	}
	return "SPEAKER_" + raw
}
