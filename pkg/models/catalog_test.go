package models

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

const catalogJSON = `{"data":[
	{"id":"gpt-5","name":"GPT-5","info":{"meta":{"modalities":{"output":["text"]}}}},
	{"id":"gpt-image-1","name":"GPT Image","info":{"meta":{"modalities":{"output":["text","image"]}}}},
	{"id":"bare"}
]}`

type fakeSource struct {
	data []byte
	err  error
	auth upstream.Auth
}

func (f *fakeSource) Models(_ context.Context, auth upstream.Auth) ([]byte, error) {
	f.auth = auth
	return f.data, f.err
}

func TestCatalog_LoadAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o644))

	c := NewCatalog(path)
	require.NoError(t, c.Load())

	raw, err := c.Raw()
	require.NoError(t, err)
	assert.JSONEq(t, catalogJSON, string(raw))

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-image-1", true},
		{"GPT Image", true},
		{"gpt-5", false},
		{"bare", false},
		{"unknown", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.IsImageModel(tt.model), tt.model)
	}
}

func TestCatalog_MissingFile(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "missing.json"))

	assert.ErrorIs(t, c.Load(), ErrUnavailable)
	_, err := c.Raw()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, c.IsImageModel("gpt-image-1"))
}

func TestCatalog_InvalidFileKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o644))
	c := NewCatalog(path)
	require.NoError(t, c.Load())

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	assert.Error(t, c.Load())
	assert.True(t, c.IsImageModel("gpt-image-1"))
}

func TestCatalog_Refresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "models.json")
	c := NewCatalog(path)
	src := &fakeSource{data: []byte(catalogJSON)}
	auth := upstream.Auth{Token: "t", AccessToken: "a"}

	require.NoError(t, c.Refresh(context.Background(), src, auth))
	assert.Equal(t, auth, src.auth)
	assert.True(t, c.IsImageModel("gpt-image-1"))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, catalogJSON, string(onDisk))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestCatalog_RefreshFailureKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o644))
	c := NewCatalog(path)
	require.NoError(t, c.Load())

	err := c.Refresh(context.Background(), &fakeSource{err: errors.New("502")}, upstream.Auth{})
	assert.Error(t, err)

	err = c.Refresh(context.Background(), &fakeSource{data: []byte("<html>")}, upstream.Auth{})
	assert.Error(t, err)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, catalogJSON, string(onDisk))
}

func TestCatalog_WatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data":[]}`), 0o644))
	c := NewCatalog(path)
	require.NoError(t, c.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o644))

	assert.Eventually(t, func() bool { return c.IsImageModel("gpt-image-1") }, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
