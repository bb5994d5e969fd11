package transcribe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/asr"
	"github.com/snarg/scribe-engine/internal/audio"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/diarize"
	"github.com/snarg/scribe-engine/internal/models"
)

// fakeStore is an in-memory JobStore that enforces the same status
// transitions as the database layer.
type fakeStore struct {
	mu       sync.Mutex
	jobs     map[int64]*database.Job
	segments []database.Segment
	nextJob  int64
	nextSeg  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[int64]*database.Job{}}
}

func (s *fakeStore) InsertJob(_ context.Context, audioPath, originalName, language string) (*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if language == "" {
		language = "auto"
	}
	s.nextJob++
	j := &database.Job{
		ID:           s.nextJob,
		AudioPath:    audioPath,
		OriginalName: originalName,
		Status:       database.StatusPending,
		Language:     language,
	}
	s.jobs[j.ID] = j
	return s.copyJob(j), nil
}

func (s *fakeStore) GetJob(_ context.Context, id int64) (*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	return s.copyJob(j), nil
}

func (s *fakeStore) MarkProcessing(_ context.Context, id int64) error {
	return s.transition(id, database.StatusPending, database.StatusProcessing, nil)
}

func (s *fakeStore) SetJobDuration(_ context.Context, id int64, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && j.Status == database.StatusProcessing {
		j.Duration = &seconds
	}
	return nil
}

func (s *fakeStore) SetJobSpeakerCount(_ context.Context, id int64, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && j.Status == database.StatusProcessing {
		j.SpeakerCount = &n
	}
	return nil
}

func (s *fakeStore) CompleteJob(_ context.Context, id int64) error {
	return s.transition(id, database.StatusProcessing, database.StatusCompleted, nil)
}

func (s *fakeStore) FailJob(_ context.Context, id int64, errMsg string) error {
	return s.transition(id, database.StatusProcessing, database.StatusFailed, &errMsg)
}

func (s *fakeStore) transition(id int64, from, to string, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	if j.Status != from {
		return &database.TransitionError{JobID: id, From: j.Status, To: to}
	}
	j.Status = to
	j.ErrorMessage = errMsg
	return nil
}

func (s *fakeStore) InsertSegment(_ context.Context, row *database.SegmentRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.StartTime >= row.EndTime {
		return 0, fmt.Errorf("segment [%f-%f]: start_time must be before end_time", row.StartTime, row.EndTime)
	}
	s.nextSeg++
	s.segments = append(s.segments, database.Segment{
		ID:         s.nextSeg,
		JobID:      row.JobID,
		Speaker:    row.Speaker,
		Text:       row.Text,
		StartTime:  row.StartTime,
		EndTime:    row.EndTime,
		Confidence: row.Confidence,
		Language:   row.Language,
	})
	return s.nextSeg, nil
}

func (s *fakeStore) ListSegmentsByJob(_ context.Context, jobID int64) ([]database.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Segment
	for _, seg := range s.segments {
		if seg.JobID == jobID {
			out = append(out, seg)
		}
	}
	return out, nil
}

func (s *fakeStore) copyJob(j *database.Job) *database.Job {
	c := *j
	return &c
}

type fakeDiarizer struct {
	turns []diarize.Turn
	err   error
}

func (f *fakeDiarizer) Diarize(_ context.Context, _ string, _ diarize.Options) ([]diarize.Turn, error) {
	return f.turns, f.err
}

// scriptedRecognizer returns one queued result per call, in order.
type scriptedRecognizer struct {
	mu      sync.Mutex
	results []asr.Result
	errAt   int // 1-based call index that fails; 0 disables
	calls   int
}

func (f *scriptedRecognizer) Recognize(_ context.Context, _, _ string) (*asr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.errAt > 0 && f.calls == f.errAt {
		return nil, errors.New("recognizer crashed")
	}
	if len(f.results) == 0 {
		return &asr.Result{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return &r, nil
}

type fakeModels struct {
	bundle *models.Bundle
	err    error
}

func (f *fakeModels) Acquire(_ context.Context) (*models.Bundle, error) {
	return f.bundle, f.err
}

// newTestJob writes one second of audio into a temp dir and creates a
// pending job pointing at it.
func newTestJob(t *testing.T, store *fakeStore, dir string) *database.Job {
	t.Helper()
	samples := make([]float32, audio.TargetSampleRate)
	for i := range samples {
		samples[i] = 0.1
	}
	if err := audio.WriteWAV(filepath.Join(dir, "input.wav"), samples, audio.TargetSampleRate); err != nil {
		t.Fatalf("write test audio: %v", err)
	}
	job, err := store.InsertJob(context.Background(), "input.wav", "meeting.wav", "")
	if err != nil {
		t.Fatalf("insert job: %v", err)
	}
	return job
}

func newTestPipeline(t *testing.T, store *fakeStore, dir string, d diarize.Diarizer, r asr.Recognizer) *Pipeline {
	t.Helper()
	return NewPipeline(PipelineOptions{
		Store:    store,
		Models:   &fakeModels{bundle: models.NewBundle(d, r, "cpu")},
		AudioDir: dir,
		WorkDir:  t.TempDir(),
		Log:      zerolog.Nop(),
	})
}

func TestPipeline_Success(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	job := newTestJob(t, store, dir)

	d := &fakeDiarizer{turns: []diarize.Turn{
		{Start: 0.0, End: 0.4, Speaker: "SPEAKER_00"},
		{Start: 0.5, End: 0.9, Speaker: "SPEAKER_01"},
	}}
	r := &scriptedRecognizer{results: []asr.Result{
		{Text: "hello there", Confidence: 0.9, Language: "en"},
		{Text: "hi", Confidence: 0.8, Language: "en"},
	}}

	p := newTestPipeline(t, store, dir, d, r)
	if err := p.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != database.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Duration == nil || *got.Duration < 0.99 || *got.Duration > 1.01 {
		t.Errorf("duration = %v, want ~1.0", got.Duration)
	}
	if got.SpeakerCount == nil || *got.SpeakerCount != 2 {
		t.Errorf("speaker_count = %v, want 2", got.SpeakerCount)
	}

	segments, _ := store.ListSegmentsByJob(context.Background(), job.ID)
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Speaker != "SPEAKER_00" || segments[0].Text != "hello there" {
		t.Errorf("first segment = %s %q", segments[0].Speaker, segments[0].Text)
	}
	if segments[1].StartTime <= segments[0].StartTime {
		t.Error("segments out of order")
	}
}

func TestPipeline_FailureKeepsEarlierSegments(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	job := newTestJob(t, store, dir)

	d := &fakeDiarizer{turns: []diarize.Turn{
		{Start: 0.0, End: 0.3, Speaker: "SPEAKER_00"},
		{Start: 0.3, End: 0.6, Speaker: "SPEAKER_01"},
		{Start: 0.6, End: 0.9, Speaker: "SPEAKER_00"},
	}}
	r := &scriptedRecognizer{
		results: []asr.Result{{Text: "first turn", Confidence: 0.9}},
		errAt:   2,
	}

	p := newTestPipeline(t, store, dir, d, r)
	if err := p.Process(context.Background(), job.ID); err == nil {
		t.Fatal("Process should fail when recognition fails")
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != database.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Error("failed job should carry an error message")
	}

	segments, _ := store.ListSegmentsByJob(context.Background(), job.ID)
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want the 1 recognized before the failure", len(segments))
	}
	if segments[0].Text != "first turn" {
		t.Errorf("surviving segment text = %q", segments[0].Text)
	}
}

func TestPipeline_DiarizationFailure(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	job := newTestJob(t, store, dir)

	d := &fakeDiarizer{err: &diarize.Error{Err: errors.New("model blew up")}}
	p := newTestPipeline(t, store, dir, d, &scriptedRecognizer{})

	if err := p.Process(context.Background(), job.ID); err == nil {
		t.Fatal("Process should fail when diarization fails")
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != database.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestPipeline_EmptyTextSkipped(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	job := newTestJob(t, store, dir)

	d := &fakeDiarizer{turns: []diarize.Turn{{Start: 0.0, End: 0.5, Speaker: "SPEAKER_00"}}}
	r := &scriptedRecognizer{results: []asr.Result{{Text: "   "}}}

	p := newTestPipeline(t, store, dir, d, r)
	if err := p.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	segments, _ := store.ListSegmentsByJob(context.Background(), job.ID)
	if len(segments) != 0 {
		t.Errorf("got %d segments, want 0 for silent turn", len(segments))
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != database.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestPipeline_RejectsNonPendingJob(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	job := newTestJob(t, store, dir)
	store.MarkProcessing(context.Background(), job.ID)

	p := newTestPipeline(t, store, dir, &fakeDiarizer{}, &scriptedRecognizer{})
	err := p.Process(context.Background(), job.ID)
	var te *database.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestPipeline_ModelInitFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	job := newTestJob(t, store, dir)

	p := NewPipeline(PipelineOptions{
		Store:    store,
		Models:   &fakeModels{err: errors.New("hub unreachable")},
		AudioDir: dir,
		WorkDir:  t.TempDir(),
		Log:      zerolog.Nop(),
	})

	if err := p.Process(context.Background(), job.ID); err == nil {
		t.Fatal("Process should fail when models cannot initialize")
	}
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != database.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "hub unreachable") {
		t.Errorf("error message = %v", got.ErrorMessage)
	}
}

func TestSpeakerLabel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"SPEAKER_00", "SPEAKER_00"},
		{"SPEAKER_07", "SPEAKER_07"},
		{"spk_3", "SPEAKER_3"},
		{"A", "SPEAKER_A"},
	}
	for _, c := range cases {
		if got := SpeakerLabel(c.in); got != c.want {
			t.Errorf("SpeakerLabel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
