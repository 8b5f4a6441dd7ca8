// Package render turns scene source code into a video file by running the
// manim CLI in a scratch directory.
package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoArtifact is returned when the renderer exits cleanly but leaves no video.
var ErrNoArtifact = errors.New("no video file was generated")

const (
	maxOutput = 4096
	// manim spawns ffmpeg; bound how long we wait for its pipes after a kill
	waitDelay = 10 * time.Second
)

// Option configures a Manim renderer.
type Option func(*Manim)

// WithBinary sets the manim executable name or path.
func WithBinary(path string) Option {
	return func(m *Manim) { m.binary = path }
}

// WithScene sets the scene class rendered from the source.
func WithScene(name string) Option {
	return func(m *Manim) { m.scene = name }
}

// WithQuality sets the quality flag suffix: l, m, h, p or k.
func WithQuality(q string) Option {
	return func(m *Manim) { m.quality = q }
}

// WithWorkDir sets the parent of the per-render scratch directories.
func WithWorkDir(dir string) Option {
	return func(m *Manim) { m.workDir = dir }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manim) { m.logger = l }
}

// Manim renders one scene per call.
type Manim struct {
	binary  string
	scene   string
	quality string
	workDir string
	logger  *slog.Logger
}

func NewManim(opts ...Option) *Manim {
	m := &Manim{
		binary:  "manim",
		scene:   "ManimScene",
		quality: "l",
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Available reports whether the manim executable can be found.
func (m *Manim) Available() error {
	if _, err := exec.LookPath(m.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", m.binary, err)
	}
	return nil
}

// Render writes source to a scratch file and renders the configured scene.
// The returned cleanup removes the scratch directory, including the video.
func (m *Manim) Render(ctx context.Context, source string) (string, func(), error) {
	if err := m.Available(); err != nil {
		return "", nil, err
	}

	dir, err := os.MkdirTemp(m.workDir, "render-*")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("remove scratch dir failed", "dir", dir, "err", err)
		}
	}

	scriptPath := filepath.Join(dir, "scene.py")
	if err := os.WriteFile(scriptPath, []byte(source), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write scene source: %w", err)
	}

	// -q<x>: render quality
	// --media_dir: keep all output inside the scratch dir
	mediaDir := filepath.Join(dir, "media")
	args := []string{
		"-q" + m.quality,
		"--media_dir", mediaDir,
		scriptPath,
		m.scene,
	}

	cmd := exec.CommandContext(ctx, m.binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	out, err := cmd.CombinedOutput()
	if err != nil {
		cleanup()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, fmt.Errorf("manim interrupted: %w", ctxErr)
		}
		return "", nil, fmt.Errorf("manim failed: %w\nOutput: %s", err, tail(out))
	}

	video, err := FindVideo(mediaDir)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w\nOutput: %s", err, tail(out))
	}
	m.logger.Debug("manim finished", "video", video, "scene", m.scene)
	return video, cleanup, nil
}

// FindVideo returns the most recently written .mp4 under root, ignoring the
// partial segments manim leaves behind.
func FindVideo(root string) (string, error) {
	var (
		best    string
		bestMod int64
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == "partial_movie_files" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if mod := info.ModTime().UnixNano(); best == "" || mod > bestMod {
			best, bestMod = path, mod
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search for video: %w", err)
	}
	if best == "" {
		return "", ErrNoArtifact
	}
	return best, nil
}

func tail(out []byte) string {
	if len(out) > maxOutput {
		out = out[len(out)-maxOutput:]
	}
	return strings.TrimSpace(string(out))
}
