package detail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// TimestampLayout renders created_at the way the list and detail screens show it
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// Fetcher downloads the bytes behind a result image URL
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// View is the read-only detail of a done request
type View struct {
	Request domain.GenerationRequest
}

// Open builds the detail view; only done requests with a result can be opened
func Open(row domain.GenerationRequest) (*View, error) {
	if row.Status != domain.StatusDone {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrNotDownloadable, row.Status)
	}
	if err := row.CheckInvariants(); err != nil {
		return nil, err
	}
	return &View{Request: row}, nil
}

// FileName is the local name offered for the result image
func (v *View) FileName() string {
	return domain.DownloadFileName(v.Request.ID, v.Request.OutputFormat)
}

// ResultURL is the generated image location
func (v *View) ResultURL() string {
	return *v.Request.ResultImageURL
}

// CreatedAt formats the creation time in loc (time.Local when nil)
func (v *View) CreatedAt(loc *time.Location) string {
	return FormatTimestamp(v.Request.CreatedAt, loc)
}

func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimestampLayout)
}

// Download saves the result image into dir and returns the written path.
// Failures leave the view untouched; calling Download again retries.
func (v *View) Download(ctx context.Context, f Fetcher, dir string) (string, error) {
	data, err := f.Download(ctx, v.ResultURL())
	if err != nil {
		return "", &domain.DownloadError{RequestID: v.Request.ID, Err: err}
	}

	path := filepath.Join(dir, v.FileName())
	if err := writeFile(path, data); err != nil {
		return "", &domain.DownloadError{RequestID: v.Request.ID, Err: err}
	}
	return path, nil
}

// writeFile replaces path only once the full image is on disk
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
