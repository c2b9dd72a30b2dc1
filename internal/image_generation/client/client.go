package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// Client talks to the image generation API
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a new Client for the API rooted at baseURL (e.g. http://localhost:8080/api/v1)
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// The change stream is long-lived; only the context ends it.
		streamClient: &http.Client{},
	}
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

// Count returns the total number of requests
func (c *Client) Count(ctx context.Context) (int, error) {
	var body struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, "/requests/count", &body); err != nil {
		return 0, &domain.FetchError{Op: "count", Err: err}
	}
	return body.Count, nil
}

// List returns up to limit requests starting at offset, newest first
func (c *Client) List(ctx context.Context, offset, limit int) ([]domain.GenerationRequest, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var body struct {
		Requests []domain.GenerationRequest `json:"requests"`
	}
	if err := c.getJSON(ctx, "/requests?"+q.Encode(), &body); err != nil {
		return nil, &domain.FetchError{Op: "range", Err: err}
	}
	return body.Requests, nil
}

// Get retrieves a single request
func (c *Client) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	var body struct {
		Request domain.GenerationRequest `json:"request"`
	}
	if err := c.getJSON(ctx, "/requests/"+url.PathEscape(id), &body); err != nil {
		return nil, &domain.FetchError{Op: "get", Err: err}
	}
	return &body.Request, nil
}

// Submit sends the prompt, options and images as one multipart request.
// Success means the request was accepted; the row may not be visible yet.
func (c *Client) Submit(ctx context.Context, in domain.CreateRequest) (*domain.GenerationRequest, error) {
	payload, contentType, err := encodeSubmission(in)
	if err != nil {
		return nil, &domain.SubmissionError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-image", payload)
	if err != nil {
		return nil, &domain.SubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.SubmissionError{Err: fmt.Errorf("failed to call trigger: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Err: decodeError(resp)}
	}

	var body struct {
		Request *domain.GenerationRequest `json:"request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &domain.SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return body.Request, nil
}

func encodeSubmission(in domain.CreateRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := [][2]string{
		{"prompt", in.Prompt},
		{"aspect_ratio", string(in.AspectRatio)},
		{"resolution", string(in.Resolution)},
		{"output_format", string(in.OutputFormat)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for _, img := range in.Images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Filename))
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// Download fetches the bytes at an absolute URL, typically a result image URL
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// DownloadURL is the API route serving the result image of id as an attachment
func (c *Client) DownloadURL(id string) string {
	return c.baseURL + "/requests/" + url.PathEscape(id) + "/download"
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HTTPError is a non-success API response
type HTTPError struct {
	StatusCode int
	Message    string
	Details    []string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s", msg, strings.Join(e.Details, "; "))
	}
	return msg
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound
}

func decodeError(resp *http.Response) error {
	herr := &HTTPError{StatusCode: resp.StatusCode}
	var body errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil {
		herr.Message = body.Error
		herr.Details = body.Details
	}
	return herr
}
