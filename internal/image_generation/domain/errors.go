package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRequestNotFound   = errors.New("generation request not found")
	ErrAlreadyTerminal   = errors.New("generation request already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid request status")
	ErrMissingResult     = errors.New("done request requires a result image url")
	ErrUnexpectedResult  = errors.New("only done requests carry a result image url")
	ErrTooManyImages     = errors.New("too many input images")
	ErrNotDownloadable   = errors.New("generation request has no downloadable result")
)

// ValidationError is a local input problem that never reaches the network
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates several per-field problems
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	switch len(es) {
	case 0:
		return "validation failed"
	case 1:
		return es[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", es[0].Error(), len(es)-1)
	}
}

// Messages returns every message in order
func (es ValidationErrors) Messages() []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Error())
	}
	return out
}

// SubmissionError means the trigger rejected the request or could not be reached
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submission failed (%d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// FetchError wraps a failed count or range read
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DownloadError wraps a failed result image download
type DownloadError struct {
	RequestID string
	Err       error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download result of %s: %v", e.RequestID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
