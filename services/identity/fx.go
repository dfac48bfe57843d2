package identity

import (
	"smallbiznis-challenge/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("identity",
	fx.Provide(NewResolver),
)

type ResolverParams struct {
	fx.In
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
	Config *config.Config
}

func NewResolver(p ResolverParams) Resolver {
	var cache Cache
	if p.Redis != nil {
		cache = p.Redis
	}
	return NewCachedResolver(NewDirectory(p.DB), cache, p.Config.Challenge.IdentityCacheTTL)
}
