// Package converters wraps external media tools used on rendered videos.
package converters

import "context"

// FrameExtractor pulls still frames out of a video file.
type FrameExtractor interface {
	// ExtractFrame writes the frame at the given offset in seconds to output
	ExtractFrame(ctx context.Context, input, output string, at float64) error

	// Probe returns metadata about the input file
	Probe(ctx context.Context, input string) (*FileInfo, error)
}

// FileInfo contains metadata about a media file
type FileInfo struct {
	Width    int     // Width in pixels
	Height   int     // Height in pixels
	Duration float64 // Duration in seconds
	Size     int64   // File size in bytes
}
