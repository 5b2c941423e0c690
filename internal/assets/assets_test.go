package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultWait = 2 * time.Second
	tick        = 5 * time.Millisecond
)

func TestLoadCachesDownloads(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("glTF" + r.URL.Path))
	}))
	defer srv.Close()

	m := NewManager(srv.Client(), DefaultCacheBytes)
	ref := srv.URL + "/files/a/model.glb"

	data, err := m.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "glTF/files/a/model.glb", string(data))

	_, err = m.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	m.Invalidate(ref)
	_, err = m.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestLoadCoalescesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	m := NewManager(srv.Client(), 0)
	ref := srv.URL + "/model.glb"

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Load(context.Background(), ref)
			errs <- err
		}()
	}
	// Let the first request reach the server before releasing it.
	require.Eventually(t, func() bool { return hits.Load() == 1 }, defaultWait, tick)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, hits.Load(), int32(2), "concurrent loads share a download")
}

func TestLoadErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := NewManager(nil, 0)
	_, err := m.Load(context.Background(), srv.URL+"/missing.glb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = m.Load(context.Background(), filepath.Join(t.TempDir(), "nope.obj"))
	assert.Error(t, err)
}

func TestLoadLocalFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cube.obj")
	require.NoError(t, os.WriteFile(p, []byte("v 0 0 0\n"), 0o644))

	m := NewManager(nil, 0)
	data, err := m.Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "v 0 0 0\n", string(data))

	hits, misses := m.Stats()
	assert.Equal(t, 0, hits)
	assert.Equal(t, 1, misses)
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(10)
	c.Set("a", make([]byte, 4))
	c.Set("b", make([]byte, 4))
	c.Set("c", make([]byte, 4))

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Set("huge", make([]byte, 11))
	_, ok = c.Get("huge")
	assert.False(t, ok, "items over budget are not cached")

	c.Set("b", make([]byte, 2))
	c.Set("d", make([]byte, 4))
	assert.Equal(t, 3, c.Len())

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestResolve(t *testing.T) {
	tests := []struct {
		base, rel, want string
	}{
		{"http://host/files/a/model.obj", "model.mtl", "http://host/files/a/model.mtl"},
		{"http://host/files/a/model.obj?x=1", "tex/albedo.png", "http://host/files/a/tex/albedo.png"},
		{"http://host/files/a/model.obj", "https://cdn/x.png", "https://cdn/x.png"},
		{filepath.Join("data", "model.obj"), "model.mtl", filepath.Join("data", "model.mtl")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.base, tt.rel))
	}
}
