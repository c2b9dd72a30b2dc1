package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
)

// GenerateImage accepts a multipart submission and starts generation.
// The response only acknowledges acceptance; the outcome arrives via the change feed.
func (h *Handler) GenerateImage(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	files := form.File["images"]
	if len(files) > domain.MaxInputImages {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": []string{fmt.Sprintf("Maximum %d files allowed.", domain.MaxInputImages)},
		})
		return
	}

	in := domain.CreateRequest{
		Prompt:       c.PostForm("prompt"),
		AspectRatio:  domain.AspectRatio(c.DefaultPostForm("aspect_ratio", string(domain.DefaultAspectRatio))),
		Resolution:   domain.Resolution(c.DefaultPostForm("resolution", string(domain.DefaultResolution))),
		OutputFormat: domain.OutputFormat(c.DefaultPostForm("output_format", string(domain.DefaultOutputFormat))),
		Images:       make([]domain.ImageUpload, 0, len(files)),
	}

	for _, fh := range files {
		img, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file " + fh.Filename})
			return
		}
		in.Images = append(in.Images, img)
	}

	req, err := h.svc.Submit(c.Request.Context(), in)
	if err != nil {
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": verrs.Messages()})
			return
		}
		h.logFor(c).Error("failed to submit generation request", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit generation request"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"request": req})
}

// readUpload reads at most one byte past the size limit so oversized files still fail validation
func readUpload(fh *multipart.FileHeader) (domain.ImageUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.ImageUpload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, domain.MaxImageBytes+1))
	if err != nil {
		return domain.ImageUpload{}, err
	}
	return domain.ImageUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// CountRequests returns the total number of requests
func (h *Handler) CountRequests(c *gin.Context) {
	count, err := h.svc.Count(c.Request.Context())
	if err != nil {
		h.logFor(c).Error("failed to count requests", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count requests"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// ListRequests returns a window of requests, newest first
func (h *Handler) ListRequests(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	requests, err := h.svc.List(c.Request.Context(), offset, limit)
	if err != nil {
		h.logFor(c).Error("failed to list requests", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}
	if requests == nil {
		requests = []domain.GenerationRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetRequest retrieves one request by ID
func (h *Handler) GetRequest(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request ID is required"})
		return
	}

	req, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		h.logFor(c).Error("failed to get request", "request_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": req})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
