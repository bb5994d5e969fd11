// Package ingest watches a drop folder and submits audio files that appear
// there, as an alternative to the HTTP upload endpoint.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe-engine/internal/transcribe"
)

// Watcher monitors a directory tree for new audio files and submits them
// through the shared intake path.
type Watcher struct {
	intake     *transcribe.Intake
	watchDir   string
	extensions map[string]bool
	log        zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Files already submitted, so repeated Write events do not duplicate jobs.
	seenMu sync.Mutex
	seen   map[string]struct{}

	filesSubmitted atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // "starting", "watching", "stopped"
}

func NewWatcher(intake *transcribe.Intake, watchDir string, extensions map[string]bool, log zerolog.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		intake:         intake,
		watchDir:       watchDir,
		extensions:     extensions,
		log:            log.With().Str("component", "watcher").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
		seen:           make(map[string]struct{}),
	}
	w.status.Store("starting")
	return w
}

// Status reports the watcher state for the health endpoint.
func (w *Watcher) Status() string {
	s, _ := w.status.Load().(string)
	return s
}

// Start initializes the fsnotify watcher over the directory tree and begins
// the event loop.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	dirCount := 0
	err = filepath.WalkDir(w.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking watch directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return err
	}

	w.log.Info().Int("directories", dirCount).Str("watch_dir", w.watchDir).Msg("drop-folder watcher started")
	w.status.Store("watching")
	go w.watchLoop()
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}
	<-w.done
	w.log.Info().
		Int64("submitted", w.filesSubmitted.Load()).
		Int64("skipped", w.filesSkipped.Load()).
		Msg("drop-folder watcher stopped")
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// Watch newly created subdirectories too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				}
				continue
			}

			if !w.wantsFile(event.Name) {
				continue
			}
			w.scheduleSubmit(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) wantsFile(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return ext != "" && w.extensions[ext]
}

// scheduleSubmit debounces submission by 500ms so the file is fully written
// before it is read.
func (w *Watcher) scheduleSubmit(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.submit(path)
	})
}

func (w *Watcher) submit(path string) {
	w.seenMu.Lock()
	if _, dup := w.seen[path]; dup {
		w.seenMu.Unlock()
		return
	}
	w.seen[path] = struct{}{}
	w.seenMu.Unlock()

	job, err := w.intake.SubmitFile(w.ctx, path, "", "watch")
	switch {
	case errors.Is(err, transcribe.ErrQueueFull):
		// Allow a retry on the next write event.
		w.seenMu.Lock()
		delete(w.seen, path)
		w.seenMu.Unlock()
		w.log.Warn().Str("path", path).Msg("queue full, dropped file not scheduled")
		w.filesSkipped.Add(1)
	case err != nil:
		w.log.Warn().Err(err).Str("path", path).Msg("dropped file rejected")
		w.filesSkipped.Add(1)
	default:
		w.filesSubmitted.Add(1)
		w.log.Info().Int64("job_id", job.ID).Str("path", path).Msg("dropped file submitted")
	}
}
