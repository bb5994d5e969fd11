// Package diarize partitions audio into speaker turns.
package diarize

import (
	"context"
	"fmt"
)

// Turn is one diarization interval attributed to a single speaker.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Options are the thresholds passed through to the diarization model.
// Turns shorter than MinTurnOn and silences shorter than MinTurnOff are
// merged or dropped by the model itself, not by this stage.
type Options struct {
	MinSpeakers int
	MaxSpeakers int
	MinTurnOn   float64 // seconds
	MinTurnOff  float64 // seconds
}

// Diarizer produces speaker turns ordered by start time for a 16kHz mono
// WAV file. Implementations must preserve the model's emission order and
// must not reorder turns by any other key.
type Diarizer interface {
	Diarize(ctx context.Context, wavPath string, opts Options) ([]Turn, error)
}

// Error wraps the underlying model failure. The stage does not retry.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("diarization: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }
