package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/scribe")

	cfg, err := Load(Overrides{EnvFile: "/nonexistent/.env"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MaxAudioBytes != 10*1024*1024 {
		t.Errorf("MaxAudioBytes = %d, want 10MB", cfg.MaxAudioBytes)
	}
	if cfg.DiarizationModel != "pyannote/speaker-diarization-3.1" {
		t.Errorf("DiarizationModel = %q", cfg.DiarizationModel)
	}
	if cfg.ModelDownloadTimeout.Seconds() != 300 {
		t.Errorf("ModelDownloadTimeout = %v, want 5m", cfg.ModelDownloadTimeout)
	}
	if cfg.MinSpeakers != 1 || cfg.MaxSpeakers != 2 {
		t.Errorf("speaker bounds = %d..%d, want 1..2", cfg.MinSpeakers, cfg.MaxSpeakers)
	}
	if cfg.MinTurnOn != 0.5 || cfg.MinTurnOff != 0.5 {
		t.Errorf("turn thresholds = %f/%f, want 0.5/0.5", cfg.MinTurnOn, cfg.MinTurnOff)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load(Overrides{EnvFile: "/nonexistent/.env"})
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/scribe")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := Load(Overrides{
		EnvFile:  "/nonexistent/.env",
		HTTPAddr: ":7070",
		AudioDir: "/tmp/audio-override",
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want CLI override :7070", cfg.HTTPAddr)
	}
	if cfg.AudioDir != "/tmp/audio-override" {
		t.Errorf("AudioDir = %q, want override", cfg.AudioDir)
	}
}

func TestExtensions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"default_list", "wav,mp3,m4a,ogg", []string{"wav", "mp3", "m4a", "ogg"}},
		{"dots_and_spaces", " .WAV , mp3 ", []string{"wav", "mp3"}},
		{"empty_entries", "wav,,mp3,", []string{"wav", "mp3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedExtensions: tt.raw}
			set := cfg.Extensions()
			if len(set) != len(tt.want) {
				t.Fatalf("got %d extensions, want %d: %v", len(set), len(tt.want), set)
			}
			for _, ext := range tt.want {
				if !set[ext] {
					t.Errorf("missing extension %q", ext)
				}
			}
		})
	}
}
