package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) Health
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	report := h.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// Check pings every configured dependency.
func (h *health) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	report := Health{Status: statusHealthy, Message: "OK", Deps: make([]Dependency, 0, 2)}

	if h.db != nil {
		dep := Dependency{Name: h.db.Name(), Status: statusHealthy, Message: "OK"}
		if sqlDB, err := h.db.DB(); err != nil {
			dep.Status, dep.Message = statusUnhealthy, err.Error()
		} else if err := sqlDB.PingContext(ctx); err != nil {
			dep.Status, dep.Message = statusUnhealthy, err.Error()
		}
		report.Deps = append(report.Deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: statusHealthy, Message: "OK"}
		if err := h.redis.Ping(ctx).Err(); err != nil {
			dep.Status, dep.Message = statusUnhealthy, err.Error()
		}
		report.Deps = append(report.Deps, dep)
	}

	for _, dep := range report.Deps {
		if dep.Status != statusHealthy {
			report.Status = statusUnhealthy
			report.Message = dep.Name + " unavailable"
			break
		}
	}
	return report
}
