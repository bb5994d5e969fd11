package asr

import "testing"

func TestParseResult(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		res, err := parseResult([]byte(`{"text":"  hello there  ","confidence":0.92,"language":"en"}`))
		if err != nil {
			t.Fatalf("parseResult failed: %v", err)
		}
		if res.Text != "hello there" {
			t.Errorf("Text = %q, want trimmed %q", res.Text, "hello there")
		}
		if res.Confidence != 0.92 {
			t.Errorf("Confidence = %f, want 0.92", res.Confidence)
		}
		if res.Language != "en" {
			t.Errorf("Language = %q, want en", res.Language)
		}
	})

	t.Run("missing_confidence_defaults_zero", func(t *testing.T) {
		res, err := parseResult([]byte(`{"text":"ok","language":"de"}`))
		if err != nil {
			t.Fatalf("parseResult failed: %v", err)
		}
		if res.Confidence != 0 {
			t.Errorf("Confidence = %f, want 0", res.Confidence)
		}
	})

	t.Run("negative_confidence_clamped", func(t *testing.T) {
		res, err := parseResult([]byte(`{"text":"ok","confidence":-1.5}`))
		if err != nil {
			t.Fatalf("parseResult failed: %v", err)
		}
		if res.Confidence != 0 {
			t.Errorf("Confidence = %f, want 0", res.Confidence)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := parseResult([]byte(`nope`)); err == nil {
			t.Error("expected error for malformed output")
		}
	})
}
