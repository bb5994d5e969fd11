package models

import (
	"errors"
	"fmt"
)

// ErrAuthConfig indicates no hub credential was configured at all.
var ErrAuthConfig = errors.New("model hub token not configured (set HF_TOKEN)")

// ErrDownloadTimeout indicates the weight download exceeded its deadline.
var ErrDownloadTimeout = errors.New("model download timed out")

// remediation is returned with every AuthInvalidError. The diarization
// weights are gated; a valid token alone is not enough.
const remediation = `check that you have:
1. Accepted the terms of use at https://huggingface.co/pyannote/speaker-diarization-3.1
2. Accepted the terms of use at https://huggingface.co/pyannote/segmentation-3.1
3. Accepted the terms of use at https://huggingface.co/pyannote/embedding-3.1
4. Enabled "Access to public gated repositories" in your Hugging Face token settings`

// AuthInvalidError indicates the hub rejected the configured token, either
// during up-front verification or partway through a gated download.
type AuthInvalidError struct {
	Detail      string
	Remediation string
}

func NewAuthInvalidError(detail string) *AuthInvalidError {
	return &AuthInvalidError{Detail: detail, Remediation: remediation}
}

func (e *AuthInvalidError) Error() string {
	return fmt.Sprintf("invalid or expired hub token: %s; %s", e.Detail, e.Remediation)
}

// DownloadError indicates a weight download failed for a reason other than
// authorization or the deadline.
type DownloadError struct {
	Repo string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Repo, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// SanityCheckError indicates the loaded pipeline failed its no-op inference.
type SanityCheckError struct {
	Stage string // "diarization" or "recognition"
	Err   error
}

func (e *SanityCheckError) Error() string {
	return fmt.Sprintf("%s sanity check failed: %v", e.Stage, e.Err)
}

func (e *SanityCheckError) Unwrap() error { return e.Err }
