package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// FileFetcher resolves a campaign's file reference to its raw bytes. The
// blob store behind the URL is an external collaborator.
type FileFetcher interface {
	Fetch(ctx context.Context, fileURL string) ([]byte, error)
}

// HTTPFetcher downloads http(s) URLs and falls back to the local filesystem
// for plain paths (uploads living next to the server in dev setups).
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 60 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	if !strings.HasPrefix(fileURL, "http") {
		return os.ReadFile(fileURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch campaign file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch campaign file: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var _ FileFetcher = (*HTTPFetcher)(nil)
