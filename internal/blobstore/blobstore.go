package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Store writes opaque blobs to durable storage and returns a public URL.
// Writing the same path twice overwrites, which is what makes clip
// re-synthesis idempotent.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// SanitizeDOI turns a DOI into a path-safe directory name.
func SanitizeDOI(doi string) string {
	replaced := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "?", "_").Replace(doi)
	return url.QueryEscape(replaced)
}

// ClipPath is the object path for one clip: the zero-padded index ties the
// clip to its section position.
func ClipPath(doi string, index int) string {
	return fmt.Sprintf("audio_segments/%s/section_%03d.mp3", SanitizeDOI(doi), index)
}
