// Package asr converts audio waveforms to text.
package asr

import "context"

// Result is the recognition output for one audio slice.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0 when the model reports none
	Language   string  `json:"language"`
}

// Recognizer runs speech recognition on a 16kHz mono WAV file. An empty
// language means auto-detection. Implementations are not safe for concurrent
// calls on the same underlying model; the model bundle serializes access.
type Recognizer interface {
	Recognize(ctx context.Context, wavPath, language string) (*Result, error)
}
