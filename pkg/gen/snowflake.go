package gen

import (
	"smallbiznis-challenge/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// NewNode creates the id generator for this process. Every replica needs its own CHALLENGE.NODE_ID.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Challenge.NodeID)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Int64("node_id", cfg.Challenge.NodeID), zap.Error(err))
		return nil, err
	}
	return node, nil
}
