package submission

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// File is one reference image offered for staging
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size is the file size in bytes
func (f File) Size() int { return len(f.Data) }

// LoadFile reads a local file and detects its type from its content
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// StageReport is the outcome of one Stage call
type StageReport struct {
	Added    []File
	Rejected []string
	// CapacityExceeded is set when some valid files did not fit the slot budget.
	CapacityExceeded bool
}

// Messages lists the user-visible problems of this call in order
func (r StageReport) Messages() []string {
	msgs := append([]string(nil), r.Rejected...)
	if r.CapacityExceeded {
		msgs = append(msgs, capacityMessage)
	}
	return msgs
}

var capacityMessage = fmt.Sprintf("Maximum %d files allowed. Some files were not added.", domain.MaxInputImages)

// Stager holds the images picked for the next submission
type Stager struct {
	maxFiles int
	maxSize  int
	files    []File
	messages []string
}

// NewStager creates a Stager with the submission limits (8 files, 10 MiB each)
func NewStager() *Stager {
	return &Stager{
		maxFiles: domain.MaxInputImages,
		maxSize:  domain.MaxImageBytes,
	}
}

// Stage offers files in order. Only the first Remaining() are considered;
// offering more than that reports the capacity message once. Each considered
// file is then checked for type and size, and invalid ones are reported by name.
func (s *Stager) Stage(offered []File) StageReport {
	var report StageReport

	if remaining := s.Remaining(); len(offered) > remaining {
		offered = offered[:remaining]
		report.CapacityExceeded = true
	}

	valid := make([]File, 0, len(offered))
	for _, f := range offered {
		if f.ContentType == "" {
			f.ContentType = mimetype.Detect(f.Data).String()
		}
		switch {
		case !domain.IsAcceptedImageType(f.ContentType):
			report.Rejected = append(report.Rejected, f.Name+": Invalid file type. Only JPEG, PNG, and WebP are allowed.")
		case f.Size() > s.maxSize:
			report.Rejected = append(report.Rejected, f.Name+": File size exceeds 10MB limit.")
		default:
			valid = append(valid, f)
		}
	}

	s.files = append(s.files, valid...)
	report.Added = valid
	s.messages = report.Messages()
	return report
}

// Remove unstages the i-th file and clears the last messages
func (s *Stager) Remove(i int) bool {
	if i < 0 || i >= len(s.files) {
		return false
	}
	s.files = append(s.files[:i], s.files[i+1:]...)
	s.messages = nil
	return true
}

// Clear drops every staged file and message
func (s *Stager) Clear() {
	s.files = nil
	s.messages = nil
}

// Files returns a copy of the staged files in order
func (s *Stager) Files() []File {
	return append([]File(nil), s.files...)
}

// Messages are the problems reported by the last Stage call
func (s *Stager) Messages() []string {
	return append([]string(nil), s.messages...)
}

func (s *Stager) Len() int { return len(s.files) }

// Remaining is how many more files can be staged
func (s *Stager) Remaining() int {
	if n := s.maxFiles - len(s.files); n > 0 {
		return n
	}
	return 0
}
