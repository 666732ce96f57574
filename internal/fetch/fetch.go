// internal/fetch/fetch.go
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"scholarship-pipeline/internal/common/logger"
)

const maxBodyBytes = 4 << 20

// Fetcher resolves scholarship and resume references into raw text. HTTP(S)
// URLs are fetched over the wire; anything else is treated as a local path,
// which covers resumes already extracted to text by the upload service.
type Fetcher struct {
	httpClient *http.Client
	logger     logger.Logger
}

func New(timeout time.Duration, log logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithFields(map[string]interface{}{"component": "fetch"}),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty source reference")
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return f.fetchURL(ctx, ref)
	}
	return f.fetchFile(ref)
}

func (f *Fetcher) fetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body of %s: %w", url, err)
	}

	f.logger.Debug("fetched source", map[string]interface{}{
		"url":   url,
		"bytes": len(body),
	})
	return string(body), nil
}

func (f *Fetcher) fetchFile(path string) (string, error) {
	data, err := os.ReadFile(strings.TrimPrefix(path, "file://"))
	if err != nil {
		return "", fmt.Errorf("read source file: %w", err)
	}
	return string(data), nil
}
