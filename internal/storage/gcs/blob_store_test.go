package gcs

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	pipestorage "github.com/JakeFAU/census-pipeline/internal/storage"
)

const helloMD5 = "5eb63bbbe01eeed093cb22bb8f5acdc3"

// fakeGCS serves object metadata from a name->md5 map and accepts uploads.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string]string
	uploads []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/o/"):
		name := r.URL.Path[strings.LastIndex(r.URL.Path, "/o/")+3:]
		sum, ok := f.objects[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"No such object"}}`)
			return
		}
		raw, _ := hex.DecodeString(sum)
		_, _ = fmt.Fprintf(w, `{"name":%q,"bucket":"test-bucket","md5Hash":%q}`,
			name, base64.StdEncoding.EncodeToString(raw))
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/"):
		body, _ := io.ReadAll(r.Body)
		name := r.URL.Query().Get("name")
		f.uploads = append(f.uploads, string(body))
		_, _ = fmt.Fprintf(w, `{"name":%q,"bucket":"test-bucket"}`, name)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	store, err := New(client, Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	return store
}

func TestHeadComparesMD5(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{objects: map[string]string{
		"same.parquet":    helloMD5,
		"changed.parquet": "0123456789abcdef0123456789abcdef",
	}}
	store := newTestStore(t, fake)

	got, err := store.Head(context.Background(), "same.parquet", helloMD5)
	require.NoError(t, err)
	assert.Equal(t, pipestorage.Match, got)

	got, err = store.Head(context.Background(), "changed.parquet", helloMD5)
	require.NoError(t, err)
	assert.Equal(t, pipestorage.Differs, got)

	got, err = store.Head(context.Background(), "new.parquet", helloMD5)
	require.NoError(t, err)
	assert.Equal(t, pipestorage.Missing, got)
}

func TestPutUploads(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{objects: map[string]string{}}
	store := newTestStore(t, fake)

	uri, err := store.Put(context.Background(), "flows.parquet", []byte("hello world"), helloMD5)
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/flows.parquet", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.uploads, 1)
	assert.Contains(t, fake.uploads[0], "hello world")
}

func TestPutRejectsBadDigest(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{objects: map[string]string{}}
	store := newTestStore(t, fake)

	_, err := store.Put(context.Background(), "flows.parquet", []byte("x"), "not-hex")
	require.Error(t, err)
	assert.Empty(t, fake.uploads)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.Head(context.Background(), "", helloMD5)
	require.ErrorIs(t, err, pipestorage.ErrEmptyKey)
}
