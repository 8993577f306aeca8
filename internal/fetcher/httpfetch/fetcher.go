// Package httpfetch streams remote files to local disk.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/JakeFAU/census-pipeline/internal/metrics"
	"github.com/JakeFAU/census-pipeline/internal/partition"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "censusctl/1.0"

const chunkSize = 8 * 1024

// Limiter paces requests before they are sent.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls client behavior.
type Config struct {
	UserAgent string
	// Timeout bounds a whole request. Zero means no timeout.
	Timeout time.Duration
	// Limiter is optional.
	Limiter Limiter
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Fetcher downloads files over HTTP. It is safe for concurrent use.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher with its own pooled transport.
func New(cfg Config) *Fetcher {
	return NewWithClient(cfg, &http.Client{
		Transport: newHTTPTransport(),
		Timeout:   cfg.Timeout,
	})
}

// NewWithClient builds a Fetcher around an existing client.
func NewWithClient(cfg Config, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Fetcher{cfg: cfg, client: client}
}

// Download GETs rawURL and streams the body to dir/name, returning the path
// written and the number of bytes copied. A partially written file is removed
// on failure.
func (f *Fetcher) Download(ctx context.Context, rawURL, dir, name string) (string, int64, error) {
	target := filepath.Join(dir, name)
	if err := partition.EnsureDir(target); err != nil {
		return "", 0, err
	}

	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, rawURL); err != nil {
			return "", 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", 0, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	//nolint:gosec // target is built from a caller-owned directory
	out, err := os.Create(target)
	if err != nil {
		return "", 0, fmt.Errorf("create download target: %w", err)
	}
	n, copyErr := io.CopyBuffer(out, resp.Body, make([]byte, chunkSize))
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(target)
		return "", n, fmt.Errorf("write %s from %s: %w", target, rawURL, copyErr)
	}
	metrics.ObserveDownload(rawURL, n)
	return target, n, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
