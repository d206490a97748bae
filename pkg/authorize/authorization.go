package authorize

import (
	"context"
	"errors"
	"fmt"

	casbin "github.com/casbin/casbin/v2"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrInvalidArgs = errors.New("invalid authorization arguments")
)

// IAuthorization is what middleware and services depend on.
type IAuthorization interface {
	Enforce(ctx context.Context, subject GroupSubject, domain Domain, object Resource, action Action) (bool, error)
	// MustEnforce returns ErrForbidden when Enforce says no.
	MustEnforce(ctx context.Context, subject GroupSubject, domain Domain, object Resource, action Action) error

	AddRoleForUserInDomain(ctx context.Context, subject GroupSubject, role Role, domain Domain) (bool, error)
	RemoveRoleForUserInDomain(ctx context.Context, subject GroupSubject, role Role, domain Domain) (bool, error)
	GetRolesForUserInDomain(ctx context.Context, subject GroupSubject, domain Domain) ([]Role, error)

	AddPermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error)
	RemovePermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error)
}

type Option func(*Authorization)

// WithSuperadminBypass lets holders of the platform superadmin role in the
// sys domain pass every check. On by default.
func WithSuperadminBypass(enabled bool) Option {
	return func(a *Authorization) { a.bypass = enabled }
}

// Authorization checks billing permissions against a casbin enforcer using
// the RBAC-with-domains model in casbin_model.conf.
type Authorization struct {
	enforcer *casbin.DistributedEnforcer
	bypass   bool
}

func NewAuthorization(e *casbin.DistributedEnforcer, opts ...Option) (IAuthorization, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: enforcer is nil", ErrInvalidArgs)
	}
	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	a := &Authorization{enforcer: e, bypass: true}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Authorization) Enforce(_ context.Context, subject GroupSubject, domain Domain, object Resource, action Action) (bool, error) {
	if subject == "" {
		return false, fmt.Errorf("%w: subject is empty", ErrInvalidArgs)
	}
	if err := checkRule(domain, object, action); err != nil {
		return false, err
	}

	if a.bypass && a.enforcer.HasGroupingPolicy(string(subject), string(RolePlatformSuperAdmin), string(DomainSys)) {
		return true, nil
	}

	allowed, err := a.enforcer.Enforce(string(subject), string(domain), string(object), string(action))
	if err != nil || allowed || !impliedByManage(action) {
		return allowed, err
	}
	return a.enforcer.Enforce(string(subject), string(domain), string(object), string(ActionManage))
}

func (a *Authorization) MustEnforce(ctx context.Context, subject GroupSubject, domain Domain, object Resource, action Action) error {
	return mustEnforce(ctx, a, subject, domain, object, action)
}

func mustEnforce(ctx context.Context, auth IAuthorization, subject GroupSubject, domain Domain, object Resource, action Action) error {
	ok, err := auth.Enforce(ctx, subject, domain, object, action)
	switch {
	case err != nil:
		return err
	case !ok:
		return ErrForbidden
	}
	return nil
}

func (a *Authorization) AddRoleForUserInDomain(_ context.Context, subject GroupSubject, role Role, domain Domain) (bool, error) {
	if err := checkGrouping(subject, role, domain); err != nil {
		return false, err
	}
	if _, ok := KnownRoles[role]; !ok {
		return false, fmt.Errorf("%w: unknown role %q", ErrInvalidArgs, role)
	}
	return a.enforcer.AddGroupingPolicy(string(subject), string(role), string(domain))
}

func (a *Authorization) RemoveRoleForUserInDomain(_ context.Context, subject GroupSubject, role Role, domain Domain) (bool, error) {
	if err := checkGrouping(subject, role, domain); err != nil {
		return false, err
	}
	return a.enforcer.RemoveGroupingPolicy(string(subject), string(role), string(domain))
}

func (a *Authorization) GetRolesForUserInDomain(_ context.Context, subject GroupSubject, domain Domain) ([]Role, error) {
	if subject == "" || !IsValidDomain(domain) {
		return nil, fmt.Errorf("%w: subject %q, domain %q", ErrInvalidArgs, subject, domain)
	}
	names := a.enforcer.GetRolesForUserInDomain(string(subject), string(domain))
	roles := make([]Role, len(names))
	for i, n := range names {
		roles[i] = Role(n)
	}
	return roles, nil
}

func (a *Authorization) AddPermission(_ context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	if _, ok := KnownRoles[role]; !ok {
		return false, fmt.Errorf("%w: unknown role %q", ErrInvalidArgs, role)
	}
	if err := checkPolicy(domain, object, action, effect); err != nil {
		return false, err
	}
	return a.enforcer.AddPolicy(string(role), string(domain), string(object), string(action), string(effect))
}

func (a *Authorization) RemovePermission(_ context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	if role == "" {
		return false, fmt.Errorf("%w: role is empty", ErrInvalidArgs)
	}
	if err := checkPolicy(domain, object, action, effect); err != nil {
		return false, err
	}
	return a.enforcer.RemovePolicy(string(role), string(domain), string(object), string(action), string(effect))
}

// checkRule rejects tuples outside the billing vocabulary so a typo can
// never silently evaluate to deny.
func checkRule(domain Domain, object Resource, action Action) error {
	if !IsValidDomain(domain) {
		return fmt.Errorf("%w: invalid domain %q", ErrInvalidArgs, domain)
	}
	if _, ok := KnownResources[object]; !ok && object != WildcardResource {
		return fmt.Errorf("%w: unknown resource %q", ErrInvalidArgs, object)
	}
	if _, ok := KnownActions[action]; !ok && action != WildcardAction {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidArgs, action)
	}
	return nil
}

func checkPolicy(domain Domain, object Resource, action Action, effect PolicyEffect) error {
	if effect != EffectAllow && effect != EffectDeny {
		return fmt.Errorf("%w: invalid effect %q", ErrInvalidArgs, effect)
	}
	return checkRule(domain, object, action)
}

func checkGrouping(subject GroupSubject, role Role, domain Domain) error {
	if subject == "" || role == "" {
		return fmt.Errorf("%w: empty subject or role", ErrInvalidArgs)
	}
	if !IsValidDomain(domain) {
		return fmt.Errorf("%w: invalid domain %q", ErrInvalidArgs, domain)
	}
	return nil
}
