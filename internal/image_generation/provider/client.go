package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/pixelforge/imagegen-backend/config"
)

const maxImageBytes = 64 << 20

var ErrNoImage = errors.New("provider returned no image")

// Client talks to the external image generation provider
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// GenerateRequest represents the request body sent to the provider
type GenerateRequest struct {
	Model        string   `json:"model,omitempty"`
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls,omitempty"`
	AspectRatio  string   `json:"aspect_ratio"`
	Resolution   string   `json:"resolution"`
	OutputFormat string   `json:"output_format"`
	NumImages    int      `json:"num_images"`
}

// GenerateResponse represents the provider response
type GenerateResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
	Description string `json:"description,omitempty"`
}

// Result is the first image produced for a request
type Result struct {
	ImageURL    string
	ContentType string
}

// NewClient creates a provider client. The API key is sent as a bearer token and
// outgoing calls are paced to cfg.RPS.
func NewClient(cfg config.ProviderConfig) *Client {
	base := &http.Client{Timeout: cfg.Timeout}
	httpClient := base
	if cfg.APIKey != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIKey,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = cfg.Timeout
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Generate asks the provider for one image and returns where it can be fetched
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider rate limit wait: %w", err)
	}

	if req.Model == "" {
		req.Model = c.model
	}
	if req.NumImages == 0 {
		req.NumImages = 1
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/images/generations", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(genResp.Images) == 0 || genResp.Images[0].URL == "" {
		return nil, ErrNoImage
	}

	return &Result{
		ImageURL:    genResp.Images[0].URL,
		ContentType: genResp.Images[0].ContentType,
	}, nil
}

// FetchImage downloads the bytes of a produced image
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
