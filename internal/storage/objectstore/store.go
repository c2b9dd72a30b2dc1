package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

// Store persists image bytes and hands back URLs that browsers can load directly.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// InputKey is the object key of the n-th reference image of a request.
func InputKey(requestID string, n int, contentType string) string {
	return fmt.Sprintf("inputs/%s/%d.%s", requestID, n, extensionFor(contentType))
}

// ResultKey is the object key of the generated image of a request.
func ResultKey(requestID, format string) string {
	return fmt.Sprintf("results/%s.%s", requestID, format)
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/png":
		return "png"
	default:
		return "bin"
	}
}
