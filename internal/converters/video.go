package converters

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var _ FrameExtractor = (*FFmpegConverter)(nil)

// FFmpegConverter uses ffmpeg and ffprobe to inspect rendered videos
type FFmpegConverter struct {
	ffmpeg  string
	ffprobe string
}

// NewFFmpegConverter creates a converter using the binaries found in PATH
func NewFFmpegConverter() *FFmpegConverter {
	return &FFmpegConverter{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

// SetBinaries overrides the ffmpeg and ffprobe executables
func (f *FFmpegConverter) SetBinaries(ffmpeg, ffprobe string) {
	if ffmpeg != "" {
		f.ffmpeg = ffmpeg
	}
	if ffprobe != "" {
		f.ffprobe = ffprobe
	}
}

// ExtractFrame writes a single frame at offset `at` seconds to output.
// The output format follows the output file extension.
func (f *FFmpegConverter) ExtractFrame(ctx context.Context, input, output string, at float64) error {
	if _, err := exec.LookPath(f.ffmpeg); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if at < 0 {
		at = 0
	}

	// -ss before -i seeks on the input, which is fast and exact enough for stills
	args := []string{
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-y",
		output,
	}

	cmd := exec.CommandContext(ctx, f.ffmpeg, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(out))
	}
	return nil
}

// Probe returns metadata about the first video stream
func (f *FFmpegConverter) Probe(ctx context.Context, input string) (*FileInfo, error) {
	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-show_entries", "format=size",
		"-of", "default=noprint_wrappers=1",
		input,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, string(out))
	}
	return parseProbe(string(out)), nil
}

func parseProbe(output string) *FileInfo {
	info := &FileInfo{}
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "width":
			if w, err := strconv.Atoi(value); err == nil {
				info.Width = w
			}
		case "height":
			if h, err := strconv.Atoi(value); err == nil {
				info.Height = h
			}
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = d
			}
		case "size":
			if s, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.Size = s
			}
		}
	}
	return info
}
