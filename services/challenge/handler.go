package challenge

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
	g := r.Group("/challenges")
	g.POST("", middleware.RequireActor(), h.create)
	g.GET("/:id", h.get)
	g.PATCH("/:id", middleware.RequireActor(), h.update)
	g.POST("/:id/archive", middleware.RequireActor(), h.archive)
	g.DELETE("/:id", middleware.RequireActor(), h.delete)

	r.GET("/users/:id/created-challenges", h.listByCreator)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ctx := c.Request.Context()
	view, err := h.svc.Create(ctx, middleware.ActorFrom(ctx), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) get(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if err := h.authorize(c, authz.ActionUpdate); err != nil {
		_ = c.Error(err)
		return
	}

	view, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) archive(c *gin.Context) {
	if err := h.authorize(c, authz.ActionArchive); err != nil {
		_ = c.Error(err)
		return
	}

	view, err := h.svc.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.authorize(c, authz.ActionDelete); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listByCreator(c *gin.Context) {
	items, err := h.svc.ListByCreator(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// authorize checks the caller against the challenge owner for action.
func (h *Handler) authorize(c *gin.Context, action string) error {
	ctx := c.Request.Context()
	owner, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return h.authz.Authorize(middleware.ActorFrom(ctx), owner.CreatorID, authz.ObjectChallenge, action)
}
