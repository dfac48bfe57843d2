package reward

import (
	"net/http"
	"strconv"

	"smallbiznis-challenge/pkg/authz"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/middleware"
	"smallbiznis-challenge/pkg/task"
	"smallbiznis-challenge/services/challenge"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Handler struct {
	svc        *Service
	challenges *challenge.Service
	authz      *authz.Authorizer
	tasks      task.Enqueuer
}

type HandlerParams struct {
	fx.In
	Service    *Service
	Challenges *challenge.Service
	Authz      *authz.Authorizer
	Tasks      task.Enqueuer `optional:"true"`
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Service, challenges: p.Challenges, authz: p.Authz, tasks: p.Tasks}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/challenges/prize-split", h.prizeSplit)
	r.POST("/challenges/:id/finalize", middleware.RequireActor(), h.finalize)
	r.GET("/challenges/:id/rewards", h.listGrants)
	r.POST("/rewards/grants/:id/retry", middleware.RequireActor(), h.retryGrant)
}

func (h *Handler) prizeSplit(c *gin.Context) {
	budget, err := strconv.ParseInt(c.Query("budget"), 10, 64)
	if err != nil || budget < 0 {
		_ = c.Error(errutil.BadRequest("budget must be a non-negative integer", err))
		return
	}
	c.JSON(http.StatusOK, SuggestPrizeSplit(budget))
}

func (h *Handler) finalize(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	owner, err := h.challenges.Get(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.authz.Authorize(middleware.ActorFrom(ctx), owner.CreatorID, authz.ObjectChallenge, authz.ActionFinalize); err != nil {
		_ = c.Error(err)
		return
	}

	out, err := h.svc.FinalizeChallenge(ctx, id)
	if err != nil && out == nil {
		_ = c.Error(err)
		return
	}
	if err != nil {
		// results are final; only crediting is outstanding
		h.enqueueIssue(c, id)
		c.JSON(http.StatusAccepted, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) enqueueIssue(c *gin.Context, challengeID string) {
	if h.tasks == nil {
		return
	}
	ctx := c.Request.Context()
	t, err := NewIssueRewardsTask(challengeID)
	if err == nil {
		_, err = h.tasks.Enqueue(ctx, t)
	}
	if err != nil && !task.IsDuplicate(err) {
		logger.Ctx(ctx).Warn("failed to enqueue reward issue", zap.String("challenge_id", challengeID), zap.Error(err))
	}
}

func (h *Handler) listGrants(c *gin.Context) {
	grants, err := h.svc.ListGrants(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": grants})
}

func (h *Handler) retryGrant(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.authz.Authorize(middleware.ActorFrom(ctx), "", authz.ObjectReward, authz.ActionRetry); err != nil {
		_ = c.Error(err)
		return
	}

	grant, err := h.svc.RetryGrant(ctx, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, grant)
}
