package submission

import (
	"net/http"

	"smallbiznis-challenge/pkg/authz"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc   *Service
	authz *authz.Authorizer
}

func NewHandler(svc *Service, a *authz.Authorizer) *Handler {
	return &Handler{svc: svc, authz: a}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/challenges/:id/submissions", middleware.RequireActor(), h.submit)
	r.GET("/submissions/:id", h.get)
	r.POST("/submissions/:id/engagement", middleware.RequireActor(), h.recordEngagement)
	r.GET("/users/:id/challenges", h.listByUser)
}

type submitRequest struct {
	PostID string `json:"post_id"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ctx := c.Request.Context()
	sub, err := h.svc.Submit(ctx, c.Param("id"), req.PostID, middleware.ActorFrom(ctx))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) get(c *gin.Context) {
	sub, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// recordEngagement is reserved for the engagement ingesters and admins.
func (h *Handler) recordEngagement(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.authz.Authorize(middleware.ActorFrom(ctx), "", authz.ObjectSubmission, authz.ActionRecordEngagement); err != nil {
		_ = c.Error(err)
		return
	}

	var delta EngagementDelta
	if err := c.ShouldBindJSON(&delta); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	sub, err := h.svc.RecordEngagement(ctx, c.Param("id"), delta)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) listByUser(c *gin.Context) {
	items, err := h.svc.ListByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
