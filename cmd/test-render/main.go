// cmd/test-render renders a local manim scene file the way the worker does,
// without Redis, a bus or blob storage.
//
// Usage:
//
//	./test-render -input scene.py
//	./test-render -input scene.py -output out.mp4 -poster out.jpg
//	./test-render -input scene.mp4 -probe  # Show video metadata only
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-renderer/internal/converters"
	"github.com/tendant/simple-renderer/internal/img"
	"github.com/tendant/simple-renderer/internal/render"
)

func main() {
	input := flag.String("input", "", "Scene source (.py), or a video with -probe (required)")
	output := flag.String("output", "", "Where to copy the rendered video (default: input base + .mp4)")
	poster := flag.String("poster", "", "Also write a poster frame to this path")
	posterSize := flag.Int("poster-size", 640, "Poster bounding box width; height is 9/16 of it")
	scene := flag.String("scene", "ManimScene", "Scene class to render")
	quality := flag.String("quality", "l", "Render quality: l, m, h, p or k")
	probe := flag.Bool("probe", false, "Show video metadata only (don't render)")
	timeout := flag.Duration("timeout", 10*time.Minute, "Render timeout")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(*input); os.IsNotExist(err) {
		log.Fatalf("Input file not found: %s", *input)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	frames := converters.NewFFmpegConverter()

	if *probe {
		fmt.Println("\nVideo Metadata:")
		fmt.Println(strings.Repeat("-", 40))
		info, err := frames.Probe(ctx, *input)
		if err != nil {
			log.Fatalf("Failed to probe file: %v", err)
		}
		printFileInfo(info)
		return
	}

	source, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("Failed to read scene: %v", err)
	}
	if *output == "" {
		ext := filepath.Ext(*input)
		*output = (*input)[:len(*input)-len(ext)] + ".mp4"
	}

	renderer := render.NewManim(
		render.WithScene(*scene),
		render.WithQuality(*quality),
		render.WithLogger(logger),
	)
	if *verbose {
		fmt.Printf("Input: %s\n", *input)
		fmt.Printf("Scene: %s (quality %s)\n", *scene, *quality)
	}

	fmt.Printf("\nRendering...\n")
	start := time.Now()
	video, cleanup, err := renderer.Render(ctx, string(source))
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}
	defer cleanup()
	duration := time.Since(start)

	if err := copyFile(video, *output); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	outputInfo, err := os.Stat(*output)
	if err != nil {
		log.Fatalf("Failed to read output file: %v", err)
	}

	fmt.Printf("\nRender successful!\n")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Output: %s\n", *output)
	fmt.Printf("Size: %s\n", formatBytes(outputInfo.Size()))
	fmt.Printf("Time: %v\n", duration.Round(time.Millisecond))

	if *verbose {
		if info, err := frames.Probe(ctx, *output); err == nil {
			fmt.Println()
			printFileInfo(info)
		}
	}

	if *poster != "" {
		gen := img.NewPosterGenerator(frames, *posterSize, *posterSize*9/16, "")
		posterPath, done, err := gen.Generate(ctx, video)
		if err != nil {
			log.Fatalf("Poster failed: %v", err)
		}
		defer done()
		if err := copyFile(posterPath, *poster); err != nil {
			log.Fatalf("Failed to write poster: %v", err)
		}
		fmt.Printf("Poster: %s\n", *poster)
	}

	fmt.Println()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// printFileInfo prints video metadata in a readable format
func printFileInfo(info *converters.FileInfo) {
	if info.Width > 0 && info.Height > 0 {
		fmt.Printf("Dimensions: %dx%d pixels\n", info.Width, info.Height)
	}
	if info.Duration > 0 {
		fmt.Printf("Duration: %.2f seconds (%s)\n", info.Duration, formatDuration(info.Duration))
	}
	if info.Size > 0 {
		fmt.Printf("File Size: %s (%.2f MB)\n", formatBytes(info.Size), float64(info.Size)/(1024*1024))
	}
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats seconds into MM:SS format
func formatDuration(seconds float64) string {
	mins := int(seconds) / 60
	secs := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
