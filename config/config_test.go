package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-eventcore/batchmanager"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.True(t, c.GzipEnabled)
	assert.Equal(t, BackendMemory, c.Backend)
	assert.Equal(t, batchmanager.Server, c.Platform)
}

func TestNew_AppliesOptionsOverDefault(t *testing.T) {
	c := New(
		WithWriteKey("wk"),
		WithDataPlaneURL("https://dp.example.com"),
		WithBackend(BackendFile),
		WithStoreDir("/tmp/eventcore"),
		WithUploadsPerSecond(5),
	)
	assert.Equal(t, "wk", c.WriteKey)
	assert.Equal(t, "https://dp.example.com", c.DataPlaneURL)
	assert.Equal(t, BackendFile, c.Backend)
	assert.Equal(t, "/tmp/eventcore", c.StoreDir)
	assert.Equal(t, 5.0, c.UploadsPerSecond)
}

func TestLoad_SeedsFromDefaultAndOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("writeKey: wk1\nplatform: mobile\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wk1", c.WriteKey)
	assert.Equal(t, batchmanager.Mobile, c.Platform)
	assert.True(t, c.GzipEnabled, "unspecified fields keep Default's value")
}

func TestWatcher_EmitsReloadOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("writeKey: wk1\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	initial := <-w.Changes()
	assert.Equal(t, "wk1", initial.WriteKey)

	require.NoError(t, os.WriteFile(path, []byte("writeKey: wk2\n"), 0o644))

	select {
	case cfg := <-w.Changes():
		assert.Equal(t, "wk2", cfg.WriteKey)
	case err := <-w.Errors():
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
