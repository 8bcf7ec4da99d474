package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// DefaultMaxImageBytes bounds how much of a response body is read.
const DefaultMaxImageBytes = 64 << 20

// ErrFetchFailed is returned when an image's bytes could not be retrieved.
var ErrFetchFailed = errors.New("loader: fetch failed")

// Source retrieves the encoded bytes of an image.
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HTTPSource fetches images over HTTP(S).
type HTTPSource struct {
	Client   *http.Client
	MaxBytes int64
}

// Fetch implements Source. Cancellation and deadlines come from ctx.
func (s *HTTPSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrFetchFailed, rawURL, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, rawURL, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s: body exceeds %d bytes", ErrFetchFailed, rawURL, limit)
	}
	return data, nil
}

// FileSource reads images from the local filesystem. It accepts plain
// paths and file:// URLs.
type FileSource struct{}

// Fetch implements Source.
func (FileSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := rawURL
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, rawURL, err)
		}
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}

// DefaultSource routes http and https URLs to an HTTPSource and everything
// else to FileSource.
func DefaultSource(client *http.Client) Source {
	h := &HTTPSource{Client: client}
	return SourceFunc(func(ctx context.Context, u string) ([]byte, error) {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return h.Fetch(ctx, u)
		}
		return FileSource{}.Fetch(ctx, u)
	})
}
