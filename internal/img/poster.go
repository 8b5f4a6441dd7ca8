// internal/img/poster.go
package img

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/tendant/simple-renderer/internal/converters"
)

// PosterGenerator grabs the closing frame of a rendered scene and scales it
// into a JPEG poster. Scenes end on their final state, which makes the last
// frame a better preview than the first.
type PosterGenerator struct {
	frames  converters.FrameExtractor
	width   int
	height  int
	workDir string
}

func NewPosterGenerator(frames converters.FrameExtractor, width, height int, workDir string) *PosterGenerator {
	return &PosterGenerator{frames: frames, width: width, height: height, workDir: workDir}
}

// Generate writes the poster to a scratch directory removed by cleanup.
func (g *PosterGenerator) Generate(ctx context.Context, videoPath string) (string, func(), error) {
	at := 0.0
	if info, err := g.frames.Probe(ctx, videoPath); err == nil && info.Duration > 0.1 {
		at = info.Duration - 0.1
	}

	dir, err := os.MkdirTemp(g.workDir, "poster-*")
	if err != nil {
		return "", nil, fmt.Errorf("create poster dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	base := filepath.Base(videoPath)
	base = base[:len(base)-len(filepath.Ext(base))]
	framePath := filepath.Join(dir, base+"_frame.png")
	if err := g.frames.ExtractFrame(ctx, videoPath, framePath, at); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("extract frame: %w", err)
	}

	posterPath := filepath.Join(dir, base+"_poster.jpg")
	if _, _, err := FitImage(framePath, posterPath, g.width, g.height); err != nil {
		cleanup()
		return "", nil, err
	}
	return posterPath, cleanup, nil
}

// FitImage scales srcPath to fit inside boxW x boxH without upscaling and
// writes it to dstPath in the format implied by its extension.
func FitImage(srcPath, dstPath string, boxW, boxH int) (w int, h int, _ error) {
	src, err := imaging.Open(srcPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open: %w", err)
	}

	out := src
	if b := src.Bounds(); b.Dx() > boxW || b.Dy() > boxH {
		out = imaging.Fit(src, boxW, boxH, imaging.Lanczos)
	}

	if err := imaging.Save(out, dstPath, imaging.JPEGQuality(85)); err != nil {
		return 0, 0, fmt.Errorf("save: %w", err)
	}
	b := out.Bounds()
	return b.Dx(), b.Dy(), nil
}
