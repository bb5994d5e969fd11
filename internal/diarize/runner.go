package diarize

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

//go:embed assets/diarize.py
var helperScript embed.FS

// Runner invokes the pyannote diarization pipeline through a Python helper
// against locally cached model weights. One invocation per call; concurrency
// control is the caller's responsibility (the model bundle serializes access).
type Runner struct {
	scriptPath string
	modelDir   string
	device     string
	python     string
}

// NewRunner materializes the helper script next to the cached weights and
// returns a runner bound to them.
func NewRunner(modelDir, device string) (*Runner, error) {
	script, err := helperScript.ReadFile("assets/diarize.py")
	if err != nil {
		return nil, fmt.Errorf("read embedded helper: %w", err)
	}

	scriptPath := filepath.Join(modelDir, "diarize_runner.py")
	if err := os.WriteFile(scriptPath, script, 0o755); err != nil {
		return nil, fmt.Errorf("write helper script: %w", err)
	}

	python := os.Getenv("SCRIBE_PYTHON")
	if python == "" {
		python = "python3"
	}

	return &Runner{
		scriptPath: scriptPath,
		modelDir:   modelDir,
		device:     device,
		python:     python,
	}, nil
}

func (r *Runner) Diarize(ctx context.Context, wavPath string, opts Options) ([]Turn, error) {
	cmd := exec.CommandContext(ctx, r.python, r.scriptPath,
		"--audio", wavPath,
		"--model-dir", r.modelDir,
		"--device", r.device,
		"--min-speakers", strconv.Itoa(opts.MinSpeakers),
		"--max-speakers", strconv.Itoa(opts.MaxSpeakers),
		"--min-duration-on", strconv.FormatFloat(opts.MinTurnOn, 'f', -1, 64),
		"--min-duration-off", strconv.FormatFloat(opts.MinTurnOff, 'f', -1, 64),
	)

	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, &Error{Err: fmt.Errorf("helper exited: %s", strings.TrimSpace(string(ee.Stderr)))}
		}
		return nil, &Error{Err: err}
	}

	turns, err := parseTurns(out)
	if err != nil {
		return nil, &Error{Err: err}
	}
	return turns, nil
}

// parseTurns decodes the helper's JSON output and validates each interval.
func parseTurns(data []byte) ([]Turn, error) {
	var payload struct {
		Turns []Turn `json:"turns"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse helper output: %w", err)
	}

	for i, turn := range payload.Turns {
		if turn.Start >= turn.End {
			return nil, fmt.Errorf("turn %d: invalid interval [%f-%f]", i, turn.Start, turn.End)
		}
		if turn.Speaker == "" {
			return nil, fmt.Errorf("turn %d: missing speaker label", i)
		}
	}
	return payload.Turns, nil
}
