package challenge

import (
	"smallbiznis-challenge/pkg/celengine"
	"smallbiznis-challenge/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("challenge",
	fx.Provide(
		ProvideValidator,
		NewService,
	),
)

var HTTPModule = fx.Module("challenge.http",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)

type ValidatorParams struct {
	fx.In
	Engine *celengine.Engine `optional:"true"`
}

// ProvideValidator checks eligibility expressions with the CEL engine when one is available.
func ProvideValidator(p ValidatorParams) *Validator {
	if p.Engine == nil {
		return NewValidator(nil)
	}
	return NewValidator(p.Engine)
}
