package leaderboard

import (
	"net/http"
	"strconv"

	"smallbiznis-challenge/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/challenges/:id/leaderboard", h.rank)
}

func (h *Handler) rank(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = c.Error(errutil.BadRequest("limit must be a non-negative integer", err))
			return
		}
		limit = n
	}

	entries, err := h.svc.Rank(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
