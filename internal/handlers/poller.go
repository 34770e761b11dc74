package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartPoller starts the mailbox poller
func (h *Handlers) StartPoller(c *gin.Context) {
	if err := h.poller.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// StopPoller stops the mailbox poller
func (h *Handlers) StopPoller(c *gin.Context) {
	if err := h.poller.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// RunOnce triggers one processing session and returns its counters
func (h *Handlers) RunOnce(c *gin.Context) {
	snap := h.poller.RunOnce()
	c.JSON(http.StatusOK, snap)
}

// GetPollerStatus returns poller status
func (h *Handlers) GetPollerStatus(c *gin.Context) {
	status := "stopped"
	if h.poller.IsRunning() {
		status = "running"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"next_run":     h.poller.NextRun(),
		"last_run":     h.poller.LastRun(),
		"last_session": h.poller.LastSnapshot(),
	})
}
