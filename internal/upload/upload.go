// Package upload publishes rendered artifacts to blob storage and returns
// their URLs. Blob names are made unique per upload, so repeated renders of
// the same session never collide.
package upload

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is implemented by every blob backend.
type Store interface {
	Upload(ctx context.Context, path string) (string, error)
	// Probe checks that the configured container or bucket is reachable.
	Probe(ctx context.Context) error
}

// BlobName returns "<uuid>_<basename>" under prefix.
func BlobName(prefix, path string) string {
	name := uuid.NewString() + "_" + filepath.Base(path)
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

func detectMime(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for mime detect: %w", err)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read for mime detect: %w", err)
	}
	ct := http.DetectContentType(buf[:n])
	if ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
			return byExt, nil
		}
	}
	return ct, nil
}
