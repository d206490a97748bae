package authorize

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/pkg/reqctx"
)

var ErrNoSubjectInContext = errors.New("no subject found in context")

// SubjectFromContext returns the authenticated user as a policy subject.
// Expired claims carry no subject.
func SubjectFromContext(ctx context.Context) (GroupSubject, error) {
	if !reqctx.IsAuthenticated(ctx) {
		return "", ErrNoSubjectInContext
	}
	id, ok := reqctx.UserIDFromContext(ctx)
	if !ok || id == uuid.Nil {
		return "", ErrNoSubjectInContext
	}
	return GroupSubject(id.String()), nil
}

// EnforceInContext checks the authenticated user against the clinic scope
// stored in ctx, or the sys domain when there is none.
func EnforceInContext(ctx context.Context, auth IAuthorization, object Resource, action Action) error {
	subject, err := SubjectFromContext(ctx)
	if err != nil {
		return err
	}
	return auth.MustEnforce(ctx, subject, DomainFromClinic(reqctx.ClinicIDFromContext(ctx)), object, action)
}
