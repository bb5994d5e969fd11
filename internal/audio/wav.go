package audio

import (
	"fmt"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// WriteWAV writes mono float32 samples as a 16-bit PCM WAV file.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

// TempWAV writes samples to a uniquely named WAV file under dir (or the
// system temp dir when empty) and returns the path plus a cleanup that
// removes it. Callers must invoke cleanup on every exit path.
func TempWAV(dir string, samples []float32, sampleRate int) (string, func(), error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("scribe-seg-%s.wav", uuid.NewString()))

	if err := WriteWAV(path, samples, sampleRate); err != nil {
		return "", nil, err
	}
	return path, func() { os.Remove(path) }, nil
}
