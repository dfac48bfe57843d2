package authz

import (
	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("authz",
	fx.Provide(New),
)

const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleService = "service"

	ObjectChallenge  = "challenge"
	ObjectReward     = "reward"
	ObjectSubmission = "submission"

	ActionUpdate           = "update"
	ActionArchive          = "archive"
	ActionDelete           = "delete"
	ActionFinalize         = "finalize"
	ActionRetry            = "retry"
	ActionRecordEngagement = "record_engagement"
)

// The owner role is implicit: it matches when the subject is the resource owner.
const defaultModel = `
[request_definition]
r = sub, owner, obj, act

[policy_definition]
p = role, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = ((p.role == "owner" && r.sub != "" && r.sub == r.owner) || g(r.sub, p.role)) && r.obj == p.obj && (p.act == "*" || r.act == p.act)
`

var defaultPolicies = [][]string{
	{RoleOwner, ObjectChallenge, ActionUpdate},
	{RoleOwner, ObjectChallenge, ActionArchive},
	{RoleOwner, ObjectChallenge, ActionDelete},
	{RoleOwner, ObjectChallenge, ActionFinalize},
	{RoleAdmin, ObjectChallenge, "*"},
	{RoleAdmin, ObjectReward, "*"},
	{RoleAdmin, ObjectSubmission, "*"},
	{RoleService, ObjectSubmission, ActionRecordEngagement},
}

type Authorizer struct {
	enforcer *casbin.Enforcer
}

// New loads the model and policy files from ACCESS_CONTROL when set, otherwise
// the built-in owner/admin policy. ACCESS_CONTROL.ADMINS are granted the admin role
// and ACCESS_CONTROL.SERVICES, the engagement ingesters, the service role.
func New(cfg *config.Config) (*Authorizer, error) {
	ac := cfg.AccessControl

	var (
		enforcer *casbin.Enforcer
		err      error
	)
	if ac.Model != "" && ac.Policy != "" {
		enforcer, err = casbin.NewEnforcer(ac.Model, ac.Policy)
	} else {
		var m model.Model
		if m, err = model.NewModelFromString(defaultModel); err != nil {
			return nil, err
		}
		if enforcer, err = casbin.NewEnforcer(m); err == nil {
			_, err = enforcer.AddPolicies(defaultPolicies)
		}
	}
	if err != nil {
		zap.L().Error("failed to init access control", zap.Error(err))
		return nil, err
	}

	for _, admin := range ac.Admins {
		if _, err := enforcer.AddRoleForUser(admin, RoleAdmin); err != nil {
			return nil, err
		}
	}
	for _, svc := range ac.Services {
		if _, err := enforcer.AddRoleForUser(svc, RoleService); err != nil {
			return nil, err
		}
	}

	return &Authorizer{enforcer: enforcer}, nil
}

// Can reports whether actor may perform action on an object owned by ownerID.
func (a *Authorizer) Can(actor, ownerID, object, action string) (bool, error) {
	return a.enforcer.Enforce(actor, ownerID, object, action)
}

// Authorize returns a typed error unless actor may perform action.
func (a *Authorizer) Authorize(actor, ownerID, object, action string) error {
	if actor == "" {
		return errutil.Unauthorized("missing actor", nil)
	}
	ok, err := a.Can(actor, ownerID, object, action)
	if err != nil {
		return errutil.Internal("failed to evaluate access policy", err)
	}
	if !ok {
		return errutil.Forbidden("not allowed to "+action+" this "+object, nil)
	}
	return nil
}
