package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
)

// StreamEvents streams per-message progress events to the dashboard as
// Server-Sent Events. Delivery is best-effort; a dropped connection has
// no effect on the pipeline.
func (h *Handlers) StreamEvents(c *gin.Context) {
	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("progress", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
