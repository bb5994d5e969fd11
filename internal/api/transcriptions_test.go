package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/transcribe"
)

// memStore backs handler tests with an in-memory job table.
type memStore struct {
	mu       sync.Mutex
	jobs     map[int64]*database.Job
	segments map[int64][]database.Segment
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{jobs: map[int64]*database.Job{}, segments: map[int64][]database.Segment{}}
}

func (s *memStore) InsertJob(_ context.Context, audioPath, originalName, language string) (*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if language == "" {
		language = "auto"
	}
	s.nextID++
	j := &database.Job{
		ID:           s.nextID,
		AudioPath:    audioPath,
		OriginalName: originalName,
		Status:       database.StatusPending,
		Language:     language,
	}
	s.jobs[j.ID] = j
	c := *j
	return &c, nil
}

func (s *memStore) GetJob(_ context.Context, id int64) (*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	c := *j
	return &c, nil
}

func (s *memStore) ListJobs(_ context.Context, limit, offset int) ([]database.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []database.Job{}
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out, len(s.jobs), nil
}

func (s *memStore) MarkProcessing(_ context.Context, id int64) error            { return nil }
func (s *memStore) SetJobDuration(_ context.Context, _ int64, _ float64) error  { return nil }
func (s *memStore) SetJobSpeakerCount(_ context.Context, _ int64, _ int) error  { return nil }
func (s *memStore) CompleteJob(_ context.Context, _ int64) error                { return nil }
func (s *memStore) FailJob(_ context.Context, _ int64, _ string) error          { return nil }

func (s *memStore) InsertSegment(_ context.Context, row *database.SegmentRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg := database.Segment{
		JobID: row.JobID, Speaker: row.Speaker, Text: row.Text,
		StartTime: row.StartTime, EndTime: row.EndTime,
	}
	s.segments[row.JobID] = append(s.segments[row.JobID], seg)
	return int64(len(s.segments[row.JobID])), nil
}

func (s *memStore) ListSegmentsByJob(_ context.Context, jobID int64) ([]database.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segments[jobID], nil
}

func newTestRouter(t *testing.T, store *memStore, queueSize int) http.Handler {
	t.Helper()
	pool := transcribe.NewPool(transcribe.PoolOptions{QueueSize: queueSize, Log: zerolog.Nop()})
	intake := transcribe.NewIntake(transcribe.IntakeOptions{
		Store:      store,
		Queue:      pool,
		AudioDir:   t.TempDir(),
		MaxBytes:   1 << 20,
		Extensions: map[string]bool{"wav": true, "mp3": true},
		Log:        zerolog.Nop(),
	})
	h := NewTranscriptionHandler(store, store, intake, 1<<20, zerolog.Nop())

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.Routes(r)
	})
	return r
}

func multipartUpload(t *testing.T, field, filename string, content []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	for k, v := range extra {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestSubmit_Accepted(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store, 8)

	body, ct := multipartUpload(t, "audio_file", "meeting.wav", []byte("audio"), map[string]string{"language": "en"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var job database.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if job.Status != database.StatusPending {
		t.Errorf("job status = %s, want pending", job.Status)
	}
	if job.Language != "en" {
		t.Errorf("language = %s, want en", job.Language)
	}
}

func TestSubmit_MissingFile(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 8)

	body, ct := multipartUpload(t, "", "", nil, map[string]string{"language": "en"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmit_BadExtension(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store, 8)

	body, ct := multipartUpload(t, "audio_file", "notes.txt", []byte("text"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(store.jobs) != 0 {
		t.Error("rejected upload must not create a job")
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store, 0)

	body, ct := multipartUpload(t, "audio_file", "a.wav", []byte("audio"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
	// The job row survives the backpressure.
	if len(store.jobs) != 1 {
		t.Errorf("jobs = %d, want 1 pending", len(store.jobs))
	}
}

func TestGet_NotFound(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGet_InvalidID(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTranscript_TextFormat(t *testing.T) {
	store := newMemStore()
	job, _ := store.InsertJob(context.Background(), "a.wav", "a.wav", "en")
	store.InsertSegment(context.Background(), &database.SegmentRow{
		JobID: job.ID, Speaker: "SPEAKER_00", Text: "hello", StartTime: 0, EndTime: 1.5,
	})
	router := newTestRouter(t, store, 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions/1/text", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %s", ct)
	}
	want := "[0.00-1.50] SPEAKER_00: hello\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestTranscript_JSONFormat(t *testing.T) {
	store := newMemStore()
	job, _ := store.InsertJob(context.Background(), "a.wav", "a.wav", "en")
	store.InsertSegment(context.Background(), &database.SegmentRow{
		JobID: job.ID, Speaker: "SPEAKER_00", Text: "hello", StartTime: 0, EndTime: 1.5,
	})
	router := newTestRouter(t, store, 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions/1/text?format=json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Segments []database.Segment `json:"segments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Segments) != 1 || resp.Segments[0].Text != "hello" {
		t.Errorf("segments = %+v", resp.Segments)
	}
}

func TestTranscript_UnknownFormat(t *testing.T) {
	store := newMemStore()
	store.InsertJob(context.Background(), "a.wav", "a.wav", "en")
	router := newTestRouter(t, store, 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions/1/text?format=xml", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestList(t *testing.T) {
	store := newMemStore()
	store.InsertJob(context.Background(), "a.wav", "a.wav", "en")
	store.InsertJob(context.Background(), "b.wav", "b.wav", "auto")
	router := newTestRouter(t, store, 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Jobs  []database.Job `json:"jobs"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Jobs) != 2 {
		t.Errorf("total = %d, jobs = %d, want 2/2", resp.Total, len(resp.Jobs))
	}
}

func TestList_InvalidPagination(t *testing.T) {
	router := newTestRouter(t, newMemStore(), 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions?limit=zero", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSegments_PartialAfterFailure(t *testing.T) {
	store := newMemStore()
	job, _ := store.InsertJob(context.Background(), "a.wav", "a.wav", "en")
	store.jobs[job.ID].Status = database.StatusFailed
	store.InsertSegment(context.Background(), &database.SegmentRow{
		JobID: job.ID, Speaker: "SPEAKER_00", Text: "partial", StartTime: 0, EndTime: 1,
	})
	router := newTestRouter(t, store, 8)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcriptions/1/segments", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status   string             `json:"status"`
		Segments []database.Segment `json:"segments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != database.StatusFailed {
		t.Errorf("status = %s, want failed", resp.Status)
	}
	if len(resp.Segments) != 1 {
		t.Errorf("segments = %d, want the partial 1", len(resp.Segments))
	}
}
