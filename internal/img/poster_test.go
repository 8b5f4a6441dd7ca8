package img

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tendant/simple-renderer/internal/converters"
)

type fakeFrames struct {
	duration float64
	probeErr error
	extract  error
	gotAt    float64
	w, h     int
}

func (f *fakeFrames) Probe(context.Context, string) (*converters.FileInfo, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &converters.FileInfo{Duration: f.duration}, nil
}

func (f *fakeFrames) ExtractFrame(_ context.Context, _, output string, at float64) error {
	f.gotAt = at
	if f.extract != nil {
		return f.extract
	}
	return writePNG(output, f.w, f.h)
}

func writePNG(path string, w, h int) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 30, G: 60, B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func TestPosterUsesLastFrame(t *testing.T) {
	frames := &fakeFrames{duration: 4, w: 960, h: 480}
	g := NewPosterGenerator(frames, 320, 320, t.TempDir())

	path, cleanup, err := g.Generate(context.Background(), "/tmp/media/ManimScene.mp4")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	defer cleanup()

	if frames.gotAt < 3.8 || frames.gotAt > 4 {
		t.Fatalf("expected a frame near the end, got %f", frames.gotAt)
	}
	if filepath.Base(path) != "ManimScene_poster.jpg" {
		t.Fatalf("unexpected poster path: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open poster: %v", err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode poster: %v", err)
	}
	if format != "jpeg" || cfg.Width != 320 || cfg.Height != 160 {
		t.Fatalf("unexpected poster %s %dx%d", format, cfg.Width, cfg.Height)
	}
}

func TestPosterFallsBackToFirstFrame(t *testing.T) {
	frames := &fakeFrames{probeErr: errors.New("ffprobe missing"), w: 10, h: 10}
	g := NewPosterGenerator(frames, 320, 320, t.TempDir())

	_, cleanup, err := g.Generate(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	cleanup()
	if frames.gotAt != 0 {
		t.Fatalf("expected first frame, got %f", frames.gotAt)
	}
}

func TestPosterExtractFailure(t *testing.T) {
	work := t.TempDir()
	g := NewPosterGenerator(&fakeFrames{extract: errors.New("ffmpeg failed")}, 320, 320, work)

	_, _, err := g.Generate(context.Background(), "clip.mp4")
	if err == nil || !strings.Contains(err.Error(), "extract frame") {
		t.Fatalf("expected extract error, got %v", err)
	}
	if entries, _ := os.ReadDir(work); len(entries) != 0 {
		t.Fatalf("scratch dir left behind: %v", entries)
	}
}

func TestFitImageDoesNotUpscale(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "small.png")
	if err := writePNG(src, 40, 20); err != nil {
		t.Fatalf("write source: %v", err)
	}

	w, h, err := FitImage(src, filepath.Join(tmp, "out.jpg"), 100, 100)
	if err != nil {
		t.Fatalf("FitImage returned error: %v", err)
	}
	if w != 40 || h != 20 {
		t.Fatalf("unexpected size: %dx%d", w, h)
	}
}

func TestFitImageMissingSource(t *testing.T) {
	tmp := t.TempDir()
	_, _, err := FitImage(filepath.Join(tmp, "missing.png"), filepath.Join(tmp, "out.jpg"), 10, 10)
	if err == nil || !strings.Contains(err.Error(), "open") {
		t.Fatalf("unexpected error: %v", err)
	}
}
