package domain

import "fmt"

const (
	MaxInputImages = 8
	MaxImageBytes  = 10 * 1024 * 1024
)

// Status is the lifecycle state of a request
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transition can happen
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Label is the human readable badge text
func (s Status) Label() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// The only legal steps are running -> done and running -> failed.
func CanTransition(from, to Status) bool {
	return from == StatusRunning && to.IsTerminal()
}

// ParseStatus validates a stored status value
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusRunning, StatusDone, StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

type AspectRatio string

const DefaultAspectRatio AspectRatio = "1:1"

// AspectRatios lists the accepted ratios in display order
var AspectRatios = []AspectRatio{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}

func ParseAspectRatio(v string) (AspectRatio, error) {
	for _, ar := range AspectRatios {
		if string(ar) == v {
			return ar, nil
		}
	}
	return "", &ValidationError{Field: "aspect_ratio", Message: fmt.Sprintf("unsupported aspect ratio %q", v)}
}

type Resolution string

const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"

	DefaultResolution = Resolution1K
)

var Resolutions = []Resolution{Resolution1K, Resolution2K, Resolution4K}

func ParseResolution(v string) (Resolution, error) {
	for _, r := range Resolutions {
		if string(r) == v {
			return r, nil
		}
	}
	return "", &ValidationError{Field: "resolution", Message: fmt.Sprintf("unsupported resolution %q", v)}
}

type OutputFormat string

const (
	OutputPNG OutputFormat = "png"
	OutputJPG OutputFormat = "jpg"

	DefaultOutputFormat = OutputPNG
)

var OutputFormats = []OutputFormat{OutputPNG, OutputJPG}

func ParseOutputFormat(v string) (OutputFormat, error) {
	for _, f := range OutputFormats {
		if string(f) == v {
			return f, nil
		}
	}
	return "", &ValidationError{Field: "output_format", Message: fmt.Sprintf("unsupported output format %q", v)}
}

// ContentType is the MIME type of an artifact in this format
func (f OutputFormat) ContentType() string {
	if f == OutputJPG {
		return "image/jpeg"
	}
	return "image/png"
}

// AcceptedImageTypes are the MIME types allowed for reference images
var AcceptedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

func IsAcceptedImageType(contentType string) bool {
	for _, t := range AcceptedImageTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
