package middleware

import (
	"context"
	"strings"

	"smallbiznis-challenge/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the authenticated user id set by the edge gateway.
const HeaderUserID = "X-User-ID"

type actorKey struct{}

// Actor copies the caller id from HeaderUserID into the request context.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			c.Request = c.Request.WithContext(WithActor(c.Request.Context(), id))
		}
		c.Next()
	}
}

// RequireActor aborts requests without a caller id.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFrom(c.Request.Context()) == "" {
			_ = c.Error(errutil.Unauthorized("missing "+HeaderUserID+" header", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func WithActor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

// ActorFrom returns the caller id, empty when anonymous.
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}
