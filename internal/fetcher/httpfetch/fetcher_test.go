package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadStreamsBody(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("x", 3*chunkSize+17)
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "census-test"})
	dir := t.TempDir()
	path, n, err := f.Download(context.Background(), srv.URL+"/wi.zip", dir, "nested/wi.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "wi.zip"), path)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, "census-test", gotUA)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestDownloadNotFoundIsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	_, _, err := New(Config{}).Download(context.Background(), srv.URL+"/missing.zip", dir, "missing.zip")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.True(t, IsNotFound(err))
	assert.NoFileExists(t, filepath.Join(dir, "missing.zip"))
}

func TestDownloadHonorsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := New(Config{Timeout: 50 * time.Millisecond})
	_, _, err := f.Download(context.Background(), srv.URL, t.TempDir(), "slow.bin")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestDownloadCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(Config{}).Download(ctx, srv.URL, t.TempDir(), "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestScratchLifecycle(t *testing.T) {
	t.Parallel()

	s, err := NewScratch(t.TempDir(), "run-")
	require.NoError(t, err)
	a, err := s.Sub("wi-")
	require.NoError(t, err)
	b, err := s.Sub("wi-")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.DirExists(t, a)

	require.NoError(t, s.Close())
	assert.NoDirExists(t, s.Dir())
}

type refusingLimiter struct{ calls int }

func (l *refusingLimiter) Wait(context.Context, string) error {
	l.calls++
	return context.DeadlineExceeded
}

func TestDownloadWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	t.Cleanup(srv.Close)

	lim := &refusingLimiter{}
	f := New(Config{Limiter: lim})
	_, _, err := f.Download(context.Background(), srv.URL+"/a.zip", t.TempDir(), "a.zip")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, lim.calls)
	assert.Zero(t, hits)
}
