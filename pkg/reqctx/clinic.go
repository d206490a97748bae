package reqctx

import (
	"context"

	"github.com/google/uuid"
)

// ClinicScope is the clinic a request acts in, resolved from the
// X-Clinic-ID header after membership was checked.
type ClinicScope struct {
	ClinicID uuid.UUID
	// Roles are the caller's RBAC roles inside the clinic.
	Roles []string
}

// WithClinic stores the clinic scope in the context.
func WithClinic(ctx context.Context, scope *ClinicScope) context.Context {
	return context.WithValue(ctx, keyClinic, scope)
}

// ClinicFromContext retrieves the clinic scope from the context.
// Returns nil, false if not set.
func ClinicFromContext(ctx context.Context) (*ClinicScope, bool) {
	v := ctx.Value(keyClinic)
	if v == nil {
		return nil, false
	}
	scope, ok := v.(*ClinicScope)
	return scope, ok && scope != nil
}

// ClinicIDFromContext returns the clinic id, or uuid.Nil when unscoped.
func ClinicIDFromContext(ctx context.Context) uuid.UUID {
	scope, ok := ClinicFromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return scope.ClinicID
}
