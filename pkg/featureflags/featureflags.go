package featureflags

import (
	"context"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/logger"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// Flag names evaluated by the challenge engine.
const (
	SingleSubmissionPerUser = "challenge_single_submission_per_user"
)

type FeatureFlag interface {
	// Enabled evaluates feature for identifier, returning fallback when flags are
	// not configured or the flag service cannot answer.
	Enabled(ctx context.Context, feature, identifier string, fallback bool) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{flagsmith.WithAnalytics()}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, feature, identifier string, fallback bool) bool {
	if s.client == nil {
		return fallback
	}

	var (
		flags flagsmith.Flags
		err   error
	)
	if identifier != "" {
		flags, err = s.client.GetIdentityFlags(identifier, nil)
	} else {
		flags, err = s.client.GetEnvironmentFlags()
	}
	if err != nil {
		logger.Ctx(ctx).Warn("feature flags unavailable", zap.String("feature", feature), zap.Error(err))
		return fallback
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return fallback
	}
	return enabled
}

// Static answers every flag with its fallback unless overridden.
type Static map[string]bool

func (s Static) Enabled(_ context.Context, feature, _ string, fallback bool) bool {
	if v, ok := s[feature]; ok {
		return v
	}
	return fallback
}
