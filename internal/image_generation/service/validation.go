package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// ValidateCreate re-checks a submission on the trigger side. Unlike the client stager,
// one bad image rejects the whole request.
func ValidateCreate(req *domain.CreateRequest) error {
	var errs domain.ValidationErrors

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		errs = append(errs, &domain.ValidationError{Field: "prompt", Message: "prompt is required"})
	}

	_, arErr := domain.ParseAspectRatio(string(req.AspectRatio))
	_, resErr := domain.ParseResolution(string(req.Resolution))
	_, fmtErr := domain.ParseOutputFormat(string(req.OutputFormat))
	for _, err := range []error{arErr, resErr, fmtErr} {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			errs = append(errs, verr)
		}
	}

	if len(req.Images) > domain.MaxInputImages {
		errs = append(errs, &domain.ValidationError{
			Field:   "images",
			Message: fmt.Sprintf("Maximum %d files allowed.", domain.MaxInputImages),
		})
	}

	for i := range req.Images {
		img := &req.Images[i]
		name := img.Filename
		if name == "" {
			name = fmt.Sprintf("image %d", i+1)
		}
		if len(img.Data) == 0 {
			errs = append(errs, &domain.ValidationError{Message: name + ": File is empty."})
			continue
		}
		if len(img.Data) > domain.MaxImageBytes {
			errs = append(errs, &domain.ValidationError{Message: name + ": File size exceeds 10MB limit."})
			continue
		}
		// Trust the bytes, not the declared header.
		detected := mimetype.Detect(img.Data).String()
		if !domain.IsAcceptedImageType(detected) {
			errs = append(errs, &domain.ValidationError{Message: name + ": Invalid file type. Only JPEG, PNG, and WebP are allowed."})
			continue
		}
		img.ContentType = detected
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
