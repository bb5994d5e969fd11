package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HubClient talks to a Hugging Face-compatible model hub: token verification
// and snapshot downloads of model repositories into a local cache.
type HubClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

func NewHubClient(baseURL, token string, log zerolog.Logger) *HubClient {
	return &HubClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
		log:     log,
	}
}

// Verify checks the token against the hub before any download is attempted.
// The caller bounds ctx with a short deadline (typically 10s).
func (h *HubClient) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/whoami-v2", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("hub token verification: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewAuthInvalidError(fmt.Sprintf("verification returned %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body))))
	default:
		return fmt.Errorf("hub token verification: unexpected status %d", resp.StatusCode)
	}
}

// Snapshot downloads every file of a model repository revision into destDir,
// skipping files already present. Authorization rejections anywhere in the
// download are reported as AuthInvalidError; a deadline expiry as
// ErrDownloadTimeout; anything else as DownloadError.
func (h *HubClient) Snapshot(ctx context.Context, repo, destDir string) error {
	files, err := h.listFiles(ctx, repo)
	if err != nil {
		return h.classify(ctx, repo, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &DownloadError{Repo: repo, Err: err}
	}

	for _, name := range files {
		if err := h.fetchFile(ctx, repo, name, destDir); err != nil {
			return h.classify(ctx, repo, err)
		}
	}

	h.log.Info().Str("repo", repo).Int("files", len(files)).Str("dest", destDir).Msg("model snapshot ready")
	return nil
}

// classify maps low-level download failures onto the provider error taxonomy.
func (h *HubClient) classify(ctx context.Context, repo string, err error) error {
	var authErr *AuthInvalidError
	if errors.As(err, &authErr) {
		return authErr
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %s", ErrDownloadTimeout, repo)
	}
	return &DownloadError{Repo: repo, Err: err}
}

func (h *HubClient) listFiles(ctx context.Context, repo string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/models/%s/revision/main", h.baseURL, repo), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, NewAuthInvalidError(fmt.Sprintf("repo %s returned %d", repo, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: unexpected status %d", repo, resp.StatusCode)
	}

	var meta struct {
		Siblings []struct {
			Rfilename string `json:"rfilename"`
		} `json:"siblings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode repo metadata: %w", err)
	}

	files := make([]string, 0, len(meta.Siblings))
	for _, s := range meta.Siblings {
		if s.Rfilename != "" {
			files = append(files, s.Rfilename)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("repo %s has no files", repo)
	}
	return files, nil
}

func (h *HubClient) fetchFile(ctx context.Context, repo, name, destDir string) error {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return nil // already cached
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", h.baseURL, repo, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return NewAuthInvalidError(fmt.Sprintf("file %s/%s returned %d", repo, name, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", name, resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}

	h.log.Debug().Str("repo", repo).Str("file", name).Int64("bytes", n).
		Dur("elapsed", time.Since(start)).Msg("model file downloaded")
	return nil
}
