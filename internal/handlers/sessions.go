package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetSession returns one processing session by its session ID
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.store.GetSession(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch session",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Session not found", Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetSessionOutcomes returns the outcome log of one session
func (h *Handlers) GetSessionOutcomes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	outcomes, err := h.store.ListOutcomes(c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch outcomes",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, outcomes)
}
