// Package fetch downloads remote voice samples into a job's staging area.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/flowsmartly/voice-worker/internal/core"
)

// DefaultTimeout bounds a download when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// DefaultMaxBytes caps a download when no limit is configured (50 MiB).
const DefaultMaxBytes = 50 << 20

const filePermissions = 0o600

// ErrResponseTooLarge indicates the payload exceeded the configured cap.
var ErrResponseTooLarge = errors.New("response body exceeds download limit")

// HTTPFetcher implements core.Fetcher over net/http, streaming the response
// body to disk instead of buffering it in memory.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// New creates an HTTPFetcher with the given per-request timeout and byte
// cap. Zero values select the package defaults.
func New(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads url to destinationPath and returns the path. Network
// failures, non-success status codes, and local write failures all surface
// as one transient failure kind with the underlying cause preserved.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, destinationPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request for %s: %w", core.ErrTransient, url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: download failed for %s: %w", core.ErrTransient, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"%w: download failed for %s: unexpected status %s",
			core.ErrTransient, url, resp.Status,
		)
	}

	err = f.writeBody(resp.Body, destinationPath)
	if err != nil {
		return "", fmt.Errorf("%w: download failed for %s: %w", core.ErrTransient, url, err)
	}

	return destinationPath, nil
}

// writeBody streams the body to disk, enforcing the byte cap. A partial
// file is removed so failed downloads leave no artifact behind.
func (f *HTTPFetcher) writeBody(body io.Reader, destinationPath string) error {
	out, err := os.OpenFile(destinationPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	// Read one byte past the cap to detect oversized payloads.
	written, copyErr := io.Copy(out, io.LimitReader(body, f.maxBytes+1))

	closeErr := out.Close()

	if copyErr == nil && written > f.maxBytes {
		copyErr = fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, f.maxBytes)
	}

	if copyErr == nil {
		copyErr = closeErr
	}

	if copyErr != nil {
		removeErr := os.Remove(destinationPath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			return errors.Join(copyErr, removeErr)
		}

		return copyErr
	}

	return nil
}
