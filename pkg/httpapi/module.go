package httpapi

import (
	"net/http"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/health"
	"smallbiznis-challenge/pkg/metrics"
	"smallbiznis-challenge/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
)

// Routes is implemented by every service handler mounted under /v1.
type Routes interface {
	Register(r gin.IRouter)
}

// AsRoutes annotates a handler constructor for the routes group.
func AsRoutes(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(Routes)),
		fx.ResultTags(`group:"routes"`),
	)
}

type Params struct {
	fx.In
	Config *config.Config
	Health health.HealthService
	Routes []Routes `group:"routes"`
}

func NewEngine(p Params) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error(), middleware.Actor())

	r.GET("/health/liveness", p.Health.Liveness)
	r.GET("/health/readiness", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")
	for _, routes := range p.Routes {
		routes.Register(v1)
	}

	return r
}
