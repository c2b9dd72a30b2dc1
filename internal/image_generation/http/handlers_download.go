package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/storage/objectstore"
)

// DownloadResult streams the generated image of a done request as an attachment
func (h *Handler) DownloadResult(c *gin.Context) {
	id := c.Param("id")

	res, err := h.svc.OpenResult(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		case errors.Is(err, domain.ErrNotDownloadable):
			c.JSON(http.StatusConflict, gin.H{"error": "request has no generated image yet"})
		case errors.Is(err, objectstore.ErrObjectNotFound):
			h.logFor(c).Error("result image missing from storage", "request_id", id)
			c.JSON(http.StatusNotFound, gin.H{"error": "generated image not found"})
		default:
			h.logFor(c).Error("failed to open result image", "request_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to download image"})
		}
		return
	}
	defer res.Body.Close()

	c.DataFromReader(http.StatusOK, -1, res.ContentType, res.Body, map[string]string{
		"Content-Disposition": `attachment; filename="` + res.FileName + `"`,
	})
}
