package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetReferrals returns the most recently extracted referrals
func (h *Handlers) GetReferrals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	referrals, err := h.store.ListRecentReferrals(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch referrals",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, referrals)
}
