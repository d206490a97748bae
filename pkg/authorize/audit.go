package authorize

import (
	"context"
	"log/slog"
	"time"
)

// AuditedAuthorization logs every decision and every policy change made
// through the wrapped IAuthorization. Role lookups pass straight through.
type AuditedAuthorization struct {
	IAuthorization
	logger *slog.Logger
}

func NewAuditedAuthorization(inner IAuthorization, logger *slog.Logger) IAuthorization {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditedAuthorization{IAuthorization: inner, logger: logger.With("component", "authz")}
}

func (a *AuditedAuthorization) Enforce(ctx context.Context, subject GroupSubject, domain Domain, object Resource, action Action) (bool, error) {
	start := time.Now()
	allowed, err := a.IAuthorization.Enforce(ctx, subject, domain, object, action)

	level := slog.LevelInfo
	switch {
	case err != nil:
		level = slog.LevelError
	case !allowed:
		level = slog.LevelWarn
	}
	a.logger.Log(ctx, level, "authz_decision",
		"subject", subject,
		"domain", domain,
		"resource", object,
		"action", action,
		"allowed", allowed,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return allowed, err
}

func (a *AuditedAuthorization) MustEnforce(ctx context.Context, subject GroupSubject, domain Domain, object Resource, action Action) error {
	return mustEnforce(ctx, a, subject, domain, object, action)
}

func (a *AuditedAuthorization) AddRoleForUserInDomain(ctx context.Context, subject GroupSubject, role Role, domain Domain) (bool, error) {
	changed, err := a.IAuthorization.AddRoleForUserInDomain(ctx, subject, role, domain)
	a.change(ctx, "add_role", changed, err, "subject", subject, "role", role, "domain", domain)
	return changed, err
}

func (a *AuditedAuthorization) RemoveRoleForUserInDomain(ctx context.Context, subject GroupSubject, role Role, domain Domain) (bool, error) {
	changed, err := a.IAuthorization.RemoveRoleForUserInDomain(ctx, subject, role, domain)
	a.change(ctx, "remove_role", changed, err, "subject", subject, "role", role, "domain", domain)
	return changed, err
}

func (a *AuditedAuthorization) AddPermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	changed, err := a.IAuthorization.AddPermission(ctx, role, domain, object, action, effect)
	a.change(ctx, "add_permission", changed, err, "role", role, "domain", domain, "resource", object, "action", action, "effect", effect)
	return changed, err
}

func (a *AuditedAuthorization) RemovePermission(ctx context.Context, role Role, domain Domain, object Resource, action Action, effect PolicyEffect) (bool, error) {
	changed, err := a.IAuthorization.RemovePermission(ctx, role, domain, object, action, effect)
	a.change(ctx, "remove_permission", changed, err, "role", role, "domain", domain, "resource", object, "action", action, "effect", effect)
	return changed, err
}

func (a *AuditedAuthorization) change(ctx context.Context, op string, changed bool, err error, attrs ...any) {
	attrs = append(attrs, "operation", op, "changed", changed)
	if err != nil {
		a.logger.ErrorContext(ctx, "authz_policy_change", append(attrs, "error", err)...)
		return
	}
	a.logger.InfoContext(ctx, "authz_policy_change", attrs...)
}
