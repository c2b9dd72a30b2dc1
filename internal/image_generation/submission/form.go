package submission

import (
	"context"
	"errors"
	"strings"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// Trigger accepts a submission; success means acceptance, not completion
type Trigger interface {
	Submit(ctx context.Context, in domain.CreateRequest) (*domain.GenerationRequest, error)
}

// Form is the submission surface state
type Form struct {
	Prompt       string
	AspectRatio  domain.AspectRatio
	Resolution   domain.Resolution
	OutputFormat domain.OutputFormat
	Images       *Stager
}

// NewForm creates a Form populated with defaults
func NewForm() *Form {
	f := &Form{Images: NewStager()}
	f.Reset()
	return f
}

// Reset restores every field to its default and unstages all images
func (f *Form) Reset() {
	f.Prompt = ""
	f.AspectRatio = domain.DefaultAspectRatio
	f.Resolution = domain.DefaultResolution
	f.OutputFormat = domain.DefaultOutputFormat
	f.Images.Clear()
}

// Validate checks the form locally; it never touches the network
func (f *Form) Validate() error {
	var errs domain.ValidationErrors
	if strings.TrimSpace(f.Prompt) == "" {
		errs = append(errs, &domain.ValidationError{Field: "prompt", Message: "Please enter a prompt"})
	}
	_, arErr := domain.ParseAspectRatio(string(f.AspectRatio))
	_, resErr := domain.ParseResolution(string(f.Resolution))
	_, fmtErr := domain.ParseOutputFormat(string(f.OutputFormat))
	for _, err := range []error{arErr, resErr, fmtErr} {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			errs = append(errs, verr)
		}
	}
	if f.Images.Len() > domain.MaxInputImages {
		errs = append(errs, &domain.ValidationError{Field: "images", Message: capacityMessage})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Request builds the trigger payload from the current fields
func (f *Form) Request() domain.CreateRequest {
	files := f.Images.Files()
	images := make([]domain.ImageUpload, 0, len(files))
	for _, file := range files {
		images = append(images, domain.ImageUpload{Filename: file.Name, ContentType: file.ContentType, Data: file.Data})
	}
	return domain.CreateRequest{
		Prompt:       strings.TrimSpace(f.Prompt),
		AspectRatio:  f.AspectRatio,
		Resolution:   f.Resolution,
		OutputFormat: f.OutputFormat,
		Images:       images,
	}
}

// Submit validates and sends the form. On any failure the form is left untouched
// so the caller can retry; on success it is reset to defaults.
func (f *Form) Submit(ctx context.Context, t Trigger) (*domain.GenerationRequest, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	req, err := t.Submit(ctx, f.Request())
	if err != nil {
		var serr *domain.SubmissionError
		if !errors.As(err, &serr) {
			err = &domain.SubmissionError{Err: err}
		}
		return nil, err
	}

	f.Reset()
	return req, nil
}
