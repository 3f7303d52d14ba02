package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Stitches per-scene clips into the final video. Remote generators do not
// guarantee uniform codec parameters across clips, so concatenation always
// re-encodes to a single normalized output profile.
// ---------------------------------------------------------------------------

// Output profile — 30fps H.264/AAC, web-ready
const (
	videoFPS     = 30
	videoCRF     = "23"
	audioBitrate = "192k"
)

type FFmpegService struct{}

func NewFFmpegService() *FFmpegService {
	return &FFmpegService{}
}

// WriteConcatManifest writes an FFmpeg concat-demuxer list file into dir,
// one `file '...'` line per clip in the given order. The order of clipPaths
// is the playback order of the final video.
func (s *FFmpegService) WriteConcatManifest(dir string, clipPaths []string) (string, error) {
	if len(clipPaths) == 0 {
		return "", fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(dir, "concat_list.txt")

	var buf bytes.Buffer
	for _, path := range clipPaths {
		buf.WriteString(fmt.Sprintf("file '%s'\n", escapeConcatPath(path)))
	}

	if err := os.WriteFile(listPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}

	return listPath, nil
}

// escapeConcatPath escapes single quotes for the concat demuxer's
// single-quoted file directive.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// ConcatReencode concatenates the clips listed in the manifest into a single
// normalized MP4. Re-encoding (rather than stream copy) is required: clips
// from different generation jobs can differ in resolution, fps, and codec
// parameters, and the concat demuxer produces corrupt output for mismatched
// streams.
func (s *FFmpegService) ConcatReencode(ctx context.Context, manifestPath, outputPath string) error {
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c:v", "libx264",
		"-crf", videoCRF,
		"-r", fmt.Sprintf("%d", videoFPS),
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}

	log.Printf("[FFmpeg] Concatenating clips (manifest=%s)", manifestPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	// Drain stdout/stderr into buffers: ffmpeg writes diagnostics to stderr,
	// and on failure its tail is the only useful signal.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w (stderr: %s)", err, tailOf(stderr.String(), 500))
	}

	return nil
}

// GetVideoDuration returns the duration of a video file in milliseconds using ffprobe.
func (s *FFmpegService) GetVideoDuration(ctx context.Context, videoPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe video duration failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse video duration: %w", err)
	}

	return int(durationSec * 1000), nil
}

func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
