package video

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastFrameArgs(t *testing.T) {
	args := lastFrameArgs("/tmp/clip.mp4", "/tmp/frame.png")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-sseof -0.25")
	assert.Contains(t, joined, "-i /tmp/clip.mp4")
	assert.Contains(t, joined, "-update 1")
	assert.Equal(t, "/tmp/frame.png", args[len(args)-1])
}

func TestProbeDurationArgs(t *testing.T) {
	args := probeDurationArgs("/tmp/clip.mp4")
	assert.Equal(t, "/tmp/clip.mp4", args[len(args)-1])
	assert.Contains(t, strings.Join(args, " "), "-show_format")
}

func TestFrameDataURL(t *testing.T) {
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.png")
	require.NoError(t, os.WriteFile(framePath, []byte{0x89, 0x50, 0x4E, 0x47}, 0644))

	url, err := FrameDataURL(framePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
}

func TestFrameDataURL_MissingFile(t *testing.T) {
	_, err := FrameDataURL("/nonexistent/frame.png")
	assert.Error(t, err)
}

func TestDownloader_DownloadClip(t *testing.T) {
	body := []byte("fake mp4 bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), 1024)
	path, err := d.DownloadClip(context.Background(), srv.URL, "job-1")
	require.NoError(t, err)
	defer d.Cleanup(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestDownloader_RejectsOversizedClip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), 1024)
	_, err := d.DownloadClip(context.Background(), srv.URL, "job-1")
	assert.Error(t, err)
}

func TestDownloader_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), 1024)
	_, err := d.DownloadClip(context.Background(), srv.URL, "job-1")
	assert.Error(t, err)
}
