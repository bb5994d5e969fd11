package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/database"
	"github.com/snarg/scribe-engine/internal/transcribe"
)

// TranscriptionHandler serves job submission, status, and transcript retrieval.
type TranscriptionHandler struct {
	store    transcribe.JobStore
	lister   JobLister
	intake   *transcribe.Intake
	maxBytes int64
	log      zerolog.Logger
}

// JobLister is the listing query the handler needs beyond JobStore.
// *database.DB satisfies it.
type JobLister interface {
	ListJobs(ctx context.Context, limit, offset int) ([]database.Job, int, error)
}

func NewTranscriptionHandler(store transcribe.JobStore, lister JobLister, intake *transcribe.Intake, maxBytes int64, log zerolog.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{
		store:    store,
		lister:   lister,
		intake:   intake,
		maxBytes: maxBytes,
		log:      log.With().Str("handler", "transcriptions").Logger(),
	}
}

// Routes registers the transcription endpoints.
func (h *TranscriptionHandler) Routes(r chi.Router) {
	r.Post("/transcriptions", h.Submit)
	r.Get("/transcriptions", h.List)
	r.Get("/transcriptions/{id}", h.Get)
	r.Get("/transcriptions/{id}/segments", h.Segments)
	r.Get("/transcriptions/{id}/text", h.Transcript)
}

// Submit handles POST /api/v1/transcriptions. Accepts a multipart form with
// an audio_file part and an optional language field. Returns 202 with the
// pending job; processing happens on the worker pool.
func (h *TranscriptionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxBytes + (1 << 20)); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing audio_file field")
		return
	}
	defer file.Close()

	language := strings.TrimSpace(r.FormValue("language"))

	job, err := h.intake.Submit(r.Context(), file, header.Filename, language, "api")
	switch {
	case errors.Is(err, transcribe.ErrQueueFull):
		// The job row exists and stays pending; the client can retry later
		// or poll it once a worker picks it up out of band.
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:  "processing queue full",
			Detail: "job created but not scheduled; resubmit or poll later",
		})
		return
	case err != nil:
		var invalid *transcribe.InvalidInputError
		if errors.As(err, &invalid) {
			WriteError(w, http.StatusBadRequest, invalid.Reason)
			return
		}
		h.log.Error().Err(err).Str("file", header.Filename).Msg("submission failed")
		WriteError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// List handles GET /api/v1/transcriptions.
func (h *TranscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, total, err := h.lister.ListJobs(r.Context(), p.Limit, p.Offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list jobs failed")
		WriteError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// Get handles GET /api/v1/transcriptions/{id}.
func (h *TranscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Segments handles GET /api/v1/transcriptions/{id}/segments. The list may be
// partial for a failed job; everything recognized before the failure is kept.
func (h *TranscriptionHandler) Segments(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	segments, err := h.store.ListSegmentsByJob(r.Context(), job.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("job_id", job.ID).Msg("list segments failed")
		WriteError(w, http.StatusInternalServerError, "could not load segments")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"job_id":   job.ID,
		"status":   job.Status,
		"segments": segments,
	})
}

// Transcript handles GET /api/v1/transcriptions/{id}/text. format=text (the
// default) renders attributed lines; format=json returns the job with its
// ordered segments.
func (h *TranscriptionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	format, err := transcribe.ValidateFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	segments, err := h.store.ListSegmentsByJob(r.Context(), job.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("job_id", job.ID).Msg("list segments failed")
		WriteError(w, http.StatusInternalServerError, "could not load segments")
		return
	}

	if format == transcribe.FormatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(transcribe.Text(segments)))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"job":      job,
		"segments": segments,
	})
}

// loadJob resolves the {id} path parameter, writing the error response itself
// when the job cannot be served.
func (h *TranscriptionHandler) loadJob(w http.ResponseWriter, r *http.Request) (*database.Job, bool) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return nil, false
	}

	job, err := h.store.GetJob(r.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Int64("job_id", id).Msg("load job failed")
		WriteError(w, http.StatusInternalServerError, "could not load job")
		return nil, false
	}
	return job, true
}
