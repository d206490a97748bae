package refund

import (
	"context"

	"github.com/Alijeyrad/simorq_billing/internal/billing"
	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
)

// Approvers decides who holds the approve-refunds capability.
type Approvers interface {
	CanApprove(ctx context.Context, actor billing.Actor) (bool, error)
}

type ApproverFunc func(ctx context.Context, actor billing.Actor) (bool, error)

func (f ApproverFunc) CanApprove(ctx context.Context, actor billing.Actor) (bool, error) {
	return f(ctx, actor)
}

// CasbinApprovers asks the RBAC policy for (user, clinic:<id>, refund, approve).
func CasbinApprovers(auth authorize.IAuthorization) Approvers {
	return ApproverFunc(func(ctx context.Context, actor billing.Actor) (bool, error) {
		return auth.Enforce(ctx,
			authorize.GroupSubject(actor.UserID.String()),
			authorize.ClinicDomain(actor.ClinicID.String()),
			authorize.ResourceRefund,
			authorize.ActionApprove,
		)
	})
}
