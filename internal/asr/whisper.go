package asr

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

//go:embed assets/whisper.py
var helperScript embed.FS

// WhisperRunner invokes faster-whisper through a Python helper against
// locally cached model weights.
type WhisperRunner struct {
	scriptPath string
	modelDir   string
	device     string
	python     string
}

// NewWhisperRunner materializes the helper script next to the cached weights
// and returns a runner bound to them.
func NewWhisperRunner(modelDir, device string) (*WhisperRunner, error) {
	script, err := helperScript.ReadFile("assets/whisper.py")
	if err != nil {
		return nil, fmt.Errorf("read embedded helper: %w", err)
	}

	scriptPath := filepath.Join(modelDir, "whisper_runner.py")
	if err := os.WriteFile(scriptPath, script, 0o755); err != nil {
		return nil, fmt.Errorf("write helper script: %w", err)
	}

	python := os.Getenv("SCRIBE_PYTHON")
	if python == "" {
		python = "python3"
	}

	return &WhisperRunner{
		scriptPath: scriptPath,
		modelDir:   modelDir,
		device:     device,
		python:     python,
	}, nil
}

func (r *WhisperRunner) Recognize(ctx context.Context, wavPath, language string) (*Result, error) {
	args := []string{r.scriptPath,
		"--audio", wavPath,
		"--model-dir", r.modelDir,
		"--device", r.device,
	}
	if language != "" && language != "auto" {
		args = append(args, "--language", language)
	}

	cmd := exec.CommandContext(ctx, r.python, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("whisper helper exited: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("run whisper helper: %w", err)
	}

	return parseResult(out)
}

// parseResult decodes the helper's JSON output. A missing confidence is
// treated as 0.0, not an error.
func parseResult(data []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	return &res, nil
}
