package domain

import (
	"strings"
	"time"
)

// GenerationRequest represents one submitted image generation job and its outcome
type GenerationRequest struct {
	ID             string       `json:"id"`
	Prompt         string       `json:"prompt"`
	InputImages    []string     `json:"images"`
	AspectRatio    AspectRatio  `json:"aspect_ratio"`
	Resolution     Resolution   `json:"resolution"`
	OutputFormat   OutputFormat `json:"output_format"`
	Status         Status       `json:"status"`
	ResultImageURL *string      `json:"generated_image_url"`
	CreatedAt      time.Time    `json:"created_at"`
}

// HasResult reports whether a non-empty result URL is attached
func (r *GenerationRequest) HasResult() bool {
	return r.ResultImageURL != nil && strings.TrimSpace(*r.ResultImageURL) != ""
}

// Complete moves a running request to done with the given result URL
func (r *GenerationRequest) Complete(resultURL string) error {
	if strings.TrimSpace(resultURL) == "" {
		return ErrMissingResult
	}
	if err := r.transition(StatusDone); err != nil {
		return err
	}
	r.ResultImageURL = &resultURL
	return nil
}

// Fail moves a running request to failed
func (r *GenerationRequest) Fail() error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	r.ResultImageURL = nil
	return nil
}

func (r *GenerationRequest) transition(to Status) error {
	if r.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !CanTransition(r.Status, to) {
		return ErrInvalidTransition
	}
	r.Status = to
	return nil
}

// CheckInvariants validates the status/result pairing of a stored row.
func (r *GenerationRequest) CheckInvariants() error {
	switch r.Status {
	case StatusDone:
		if !r.HasResult() {
			return ErrMissingResult
		}
	case StatusFailed, StatusRunning:
		if r.ResultImageURL != nil {
			return ErrUnexpectedResult
		}
	default:
		return ErrInvalidStatus
	}
	if len(r.InputImages) > MaxInputImages {
		return ErrTooManyImages
	}
	return nil
}

// CreateRequest carries a validated submission into the trigger
type CreateRequest struct {
	Prompt       string
	AspectRatio  AspectRatio
	Resolution   Resolution
	OutputFormat OutputFormat
	Images       []ImageUpload
}

// ImageUpload is one raw reference image attached to a submission
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EventType identifies a change-feed notification
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// ChangeEvent is a single change-feed notification for the request table
type ChangeEvent struct {
	Type EventType         `json:"event_type"`
	Row  GenerationRequest `json:"row"`
}

// DownloadFileName is the local file name offered for a request's result image
func DownloadFileName(id string, format OutputFormat) string {
	return "generated-image-" + id + "." + string(format)
}
