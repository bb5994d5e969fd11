// Package models manages the lifecycle of the two inference models: gated
// download from the hub, device placement, sanity checking, and teardown.
package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/asr"
	"github.com/snarg/scribe-engine/internal/audio"
	"github.com/snarg/scribe-engine/internal/diarize"
)

// Options configures the provider. NewDiarizer/NewRecognizer exist so tests
// can substitute in-process fakes for the exec-backed runners.
type Options struct {
	Token            string
	HubURL           string
	CacheDir         string
	DiarizationModel string
	WhisperModel     string
	Device           string // auto|cuda|cpu
	VerifyTimeout    time.Duration
	DownloadTimeout  time.Duration
	Log              zerolog.Logger

	NewDiarizer   func(modelDir, device string) (diarize.Diarizer, error)
	NewRecognizer func(modelDir, device string) (asr.Recognizer, error)
}

// Bundle holds the ready-to-use model handles. Inference calls on the same
// model are not concurrency-safe, so each handle is guarded by its own mutex;
// all inference goes through Diarize/Recognize.
type Bundle struct {
	Device string

	diarizeMu sync.Mutex
	diarizer  diarize.Diarizer

	asrMu      sync.Mutex
	recognizer asr.Recognizer
}

// NewBundle wraps already-constructed engines. Used by the provider after
// initialization and by tests that bypass it.
func NewBundle(d diarize.Diarizer, r asr.Recognizer, device string) *Bundle {
	return &Bundle{Device: device, diarizer: d, recognizer: r}
}

// Diarize runs the diarization model, serialized against concurrent callers.
func (b *Bundle) Diarize(ctx context.Context, wavPath string, opts diarize.Options) ([]diarize.Turn, error) {
	b.diarizeMu.Lock()
	defer b.diarizeMu.Unlock()
	return b.diarizer.Diarize(ctx, wavPath, opts)
}

// Recognize runs the speech model, serialized against concurrent callers.
func (b *Bundle) Recognize(ctx context.Context, wavPath, language string) (*asr.Result, error) {
	b.asrMu.Lock()
	defer b.asrMu.Unlock()
	return b.recognizer.Recognize(ctx, wavPath, language)
}

// Provider owns the process-wide model bundle. Initialization is lazy and
// serialized: concurrent first use runs the sequence exactly once, with other
// callers blocking until it finishes or fails.
type Provider struct {
	mu     sync.Mutex
	opts   Options
	bundle *Bundle
	log    zerolog.Logger
}

func NewProvider(opts Options) *Provider {
	if opts.NewDiarizer == nil {
		opts.NewDiarizer = func(modelDir, device string) (diarize.Diarizer, error) {
			return diarize.NewRunner(modelDir, device)
		}
	}
	if opts.NewRecognizer == nil {
		opts.NewRecognizer = func(modelDir, device string) (asr.Recognizer, error) {
			return asr.NewWhisperRunner(modelDir, device)
		}
	}
	return &Provider{opts: opts, log: opts.Log}
}

// Acquire returns the model bundle, initializing it on first use.
// Initialization: resolve credential → verify against the hub → download
// weights under a deadline → construct engines on the detected device → run
// a no-op inference. A failed attempt leaves the provider uninitialized so a
// later call can retry.
func (p *Provider) Acquire(ctx context.Context) (*Bundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bundle != nil {
		return p.bundle, nil
	}

	bundle, err := p.initialize(ctx)
	if err != nil {
		return nil, err
	}
	p.bundle = bundle
	return bundle, nil
}

// Initialized reports whether the bundle is loaded, without triggering
// initialization.
func (p *Provider) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bundle != nil
}

// Release discards the model handles and clears the initialization flag so a
// subsequent Acquire reinitializes. Idempotent; never fails.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bundle == nil {
		return
	}
	p.bundle = nil
	runtime.GC()
	p.log.Info().Msg("model bundle released")
}

func (p *Provider) initialize(ctx context.Context) (*Bundle, error) {
	start := time.Now()

	if strings.TrimSpace(p.opts.Token) == "" {
		return nil, ErrAuthConfig
	}

	hub := NewHubClient(p.opts.HubURL, p.opts.Token, p.log)

	verifyCtx, cancel := context.WithTimeout(ctx, p.opts.VerifyTimeout)
	err := hub.Verify(verifyCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	p.log.Info().Msg("hub token verified")

	diarDir := p.cachePath(p.opts.DiarizationModel)
	asrDir := p.cachePath(p.opts.WhisperModel)

	dlCtx, cancel := context.WithTimeout(ctx, p.opts.DownloadTimeout)
	defer cancel()
	if err := hub.Snapshot(dlCtx, p.opts.DiarizationModel, diarDir); err != nil {
		return nil, err
	}
	if err := hub.Snapshot(dlCtx, p.opts.WhisperModel, asrDir); err != nil {
		return nil, err
	}

	device := DetectDevice(p.opts.Device)

	diarizer, err := p.opts.NewDiarizer(diarDir, device)
	if err != nil {
		return nil, fmt.Errorf("load diarization model: %w", err)
	}
	recognizer, err := p.opts.NewRecognizer(asrDir, device)
	if err != nil {
		return nil, fmt.Errorf("load speech model: %w", err)
	}

	bundle := NewBundle(diarizer, recognizer, device)
	if err := p.sanityCheck(ctx, bundle); err != nil {
		return nil, err
	}

	p.log.Info().
		Str("device", device).
		Str("diarization_model", p.opts.DiarizationModel).
		Str("whisper_model", p.opts.WhisperModel).
		Dur("elapsed", time.Since(start)).
		Msg("model bundle initialized")
	return bundle, nil
}

// sanityCheck runs one no-op inference through each model on a second of
// silence, failing fast if the pipeline is unusable.
func (p *Provider) sanityCheck(ctx context.Context, bundle *Bundle) error {
	silence := make([]float32, audio.TargetSampleRate)
	wavPath, cleanup, err := audio.TempWAV(p.opts.CacheDir, silence, audio.TargetSampleRate)
	if err != nil {
		return &SanityCheckError{Stage: "diarization", Err: err}
	}
	defer cleanup()

	if _, err := bundle.Diarize(ctx, wavPath, diarize.Options{MinSpeakers: 1, MaxSpeakers: 2}); err != nil {
		return &SanityCheckError{Stage: "diarization", Err: err}
	}
	if _, err := bundle.Recognize(ctx, wavPath, ""); err != nil {
		return &SanityCheckError{Stage: "recognition", Err: err}
	}
	return nil
}

// cachePath maps a repo name like "pyannote/speaker-diarization-3.1" onto a
// directory under the cache root.
func (p *Provider) cachePath(repo string) string {
	return filepath.Join(p.opts.CacheDir, filepath.FromSlash(repo))
}

// EnsureCacheDir creates the model cache root if missing.
func (p *Provider) EnsureCacheDir() error {
	return os.MkdirAll(p.opts.CacheDir, 0o755)
}
