package http

import "github.com/gin-gonic/gin"

// Register registers the image generation routes
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/generate-image", h.GenerateImage)
	rg.GET("/requests", h.ListRequests)
	rg.GET("/requests/count", h.CountRequests)
	rg.GET("/requests/stream", h.StreamChanges)
	rg.GET("/requests/:id", h.GetRequest)
	rg.GET("/requests/:id/download", h.DownloadResult)
}
