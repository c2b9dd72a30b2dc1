package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StreamChanges relays insert/update notifications of the request table using Server-Sent Events (SSE)
func (h *Handler) StreamChanges(c *gin.Context) {
	ctx := c.Request.Context()

	sub, err := h.subscribe(ctx)
	if err != nil {
		h.logFor(c).Error("failed to subscribe to change feed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "change feed unavailable"})
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // nginx: disable buffering

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Status(http.StatusOK)
	fmt.Fprint(c.Writer, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case <-h.closing:
			return

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()

		case ev, ok := <-events:
			if !ok {
				// feed closed underneath us; the client reconnects
				return
			}
			data, err := json.Marshal(ev.Row)
			if err != nil {
				h.logFor(c).Warn("failed to encode change event", "request_id", ev.Row.ID, "error", err)
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
