package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// Decode reads an audio file into raw interleaved samples at its native
// channel count and sample rate. WAV files are decoded directly; other
// allow-listed containers (mp3, m4a, ogg) are converted to WAV via ffmpeg
// first. Returns UnsupportedAudioError for anything that cannot be decoded.
func Decode(ctx context.Context, path string) (*Decoded, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "wav":
		return decodeWAV(path)
	case "mp3", "m4a", "ogg":
		wavPath, cleanup, err := convertToWAV(ctx, path)
		if err != nil {
			return nil, &UnsupportedAudioError{Path: path, Reason: "conversion failed", Err: err}
		}
		defer cleanup()
		return decodeWAV(wavPath)
	default:
		return nil, &UnsupportedAudioError{Path: path, Reason: fmt.Sprintf("extension %q not in allow-list", ext)}
	}
}

func decodeWAV(path string) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &UnsupportedAudioError{Path: path, Reason: "open failed", Err: err}
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, &UnsupportedAudioError{Path: path, Reason: "not a valid WAV file"}
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, &UnsupportedAudioError{Path: path, Reason: "pcm decode failed", Err: err}
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return nil, &UnsupportedAudioError{Path: path, Reason: "missing format header"}
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	return &Decoded{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// convertToWAV decodes a compressed container to a temporary WAV file using
// ffmpeg, preserving the native channel count and sample rate. The returned
// cleanup removes the temp file.
func convertToWAV(ctx context.Context, path string) (string, func(), error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	out := filepath.Join(os.TempDir(),
		fmt.Sprintf("scribe-decode-%d-%s.wav", os.Getpid(), strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))))

	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", path, "-f", "wav", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out)
		return "", nil, fmt.Errorf("ffmpeg: %w: %s", err, lastLine(output))
	}

	return out, func() { os.Remove(out) }, nil
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
