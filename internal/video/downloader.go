package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Downloader fetches generated clips from provider CDNs into the temp dir.
type Downloader struct {
	httpClient  *http.Client
	tempDir     string
	maxFileSize int64
}

// NewDownloader creates a clip downloader with a size cap.
func NewDownloader(tempDir string, maxFileSize int64) *Downloader {
	if maxFileSize <= 0 {
		maxFileSize = 512 * 1024 * 1024 // 512MB
	}
	return &Downloader{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		tempDir:     tempDir,
		maxFileSize: maxFileSize,
	}
}

// DownloadClip streams a video URL to disk and returns the local path.
func (d *Downloader) DownloadClip(ctx context.Context, url, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if resp.ContentLength > d.maxFileSize {
		return "", fmt.Errorf("clip too large: %d bytes (limit %d)", resp.ContentLength, d.maxFileSize)
	}

	if err := os.MkdirAll(d.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	outPath := filepath.Join(d.tempDir, fmt.Sprintf("%s_clip.mp4", jobID))
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create clip file: %w", err)
	}
	defer out.Close()

	// Enforce the cap for servers that don't send Content-Length.
	written, err := io.Copy(out, io.LimitReader(resp.Body, d.maxFileSize+1))
	if err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("failed to write clip: %w", err)
	}
	if written > d.maxFileSize {
		os.Remove(outPath)
		return "", fmt.Errorf("clip exceeded size limit of %d bytes", d.maxFileSize)
	}

	return outPath, nil
}

// Cleanup removes a downloaded file. Errors are ignored; the temp dir is
// disposable.
func (d *Downloader) Cleanup(path string) {
	if path != "" {
		os.Remove(path)
	}
}
