package video

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// FFmpegHelper wraps the ffmpeg/ffprobe binaries for frame extraction.
// Both binaries must be on PATH; the worker refuses to start without them.
type FFmpegHelper struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
}

// NewFFmpegHelper verifies the FFmpeg installation and prepares the temp dir.
func NewFFmpegHelper(tempDir string) (*FFmpegHelper, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &FFmpegHelper{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
	}, nil
}

// TempDir returns the helper's working directory.
func (h *FFmpegHelper) TempDir() string { return h.tempDir }

// GetClipDuration returns the clip duration in seconds using ffprobe.
func (h *FFmpegHelper) GetClipDuration(videoPath string) (float64, error) {
	cmd := exec.Command(h.ffprobePath, probeDurationArgs(videoPath)...)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe JSON: %w", err)
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", probe.Format.Duration, err)
	}

	return duration, nil
}

// ExtractLastFrame writes the clip's final frame to a PNG in the temp dir and
// returns its path. This frame seeds the next scene in a scenario.
func (h *FFmpegHelper) ExtractLastFrame(videoPath, jobID string) (string, error) {
	outputPath := filepath.Join(h.tempDir, fmt.Sprintf("%s_lastframe.png", jobID))

	cmd := exec.Command(h.ffmpegPath, lastFrameArgs(videoPath, outputPath)...)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("last frame extraction failed: %w", err)
	}

	// ffmpeg can exit 0 without writing a frame on a truncated clip.
	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("last frame not written: %w", err)
	}

	return outputPath, nil
}

// FrameDataURL reads an extracted frame and encodes it as a PNG data URL,
// the form provider APIs accept as an inline reference image.
func FrameDataURL(framePath string) (string, error) {
	data, err := os.ReadFile(framePath)
	if err != nil {
		return "", fmt.Errorf("failed to read frame: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// probeDurationArgs builds the ffprobe invocation for clip duration.
func probeDurationArgs(videoPath string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		videoPath,
	}
}

// lastFrameArgs builds the ffmpeg invocation for the final frame.
// -sseof -0.25 seeks a quarter second before the end of stream, then
// -update 1 keeps overwriting the output so the last decoded frame wins.
func lastFrameArgs(videoPath, outputPath string) []string {
	return []string{
		"-sseof", "-0.25",
		"-i", videoPath,
		"-vsync", "0",
		"-q:v", "2",
		"-update", "1",
		"-y",
		outputPath,
	}
}
