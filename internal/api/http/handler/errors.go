package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/simorq_billing/internal/api/http/middleware"
	"github.com/Alijeyrad/simorq_billing/internal/billing"
	pasetotoken "github.com/Alijeyrad/simorq_billing/pkg/paseto"
)

func userIDFromClaims(c fiber.Ctx) (uuid.UUID, bool) {
	claims, found := pasetotoken.ClaimsFromFiber(c)
	if !found {
		return uuid.UUID{}, false
	}
	return claims.UserID, true
}

func clinicIDFromLocals(c fiber.Ctx) (uuid.UUID, bool) {
	s, hasKey := c.Locals(middleware.LocalsClinicID).(string)
	if !hasKey || s == "" {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}

// actorFromFiber builds the caller from the token and the clinic scope.
func actorFromFiber(c fiber.Ctx) (billing.Actor, error) {
	userID, found := userIDFromClaims(c)
	if !found {
		return billing.Actor{}, fiber.ErrUnauthorized
	}
	clinicID, valid := clinicIDFromLocals(c)
	if !valid {
		return billing.Actor{}, fiber.NewError(fiber.StatusBadRequest, "missing clinic context")
	}
	return billing.Actor{UserID: userID, ClinicID: clinicID}, nil
}

func uuidParam(c fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func mapBillingError(c fiber.Ctx, err error) error {
	var (
		validation  *billing.ValidationError
		exceeds     *billing.ExceedsRefundableError
		transition  *billing.InvalidTransitionError
		overpayment *billing.OverpaymentError
		fiberErr    *fiber.Error
	)

	switch {
	case errors.As(err, &exceeds):
		return unprocessable(c, fiber.Map{
			"error":     exceeds.Error(),
			"requested": exceeds.Requested,
			"ceiling":   exceeds.Ceiling,
		})
	case errors.As(err, &validation):
		return validationFailed(c, validation)
	case errors.Is(err, billing.ErrValidation):
		return badRequest(c, err.Error())
	case errors.As(err, &transition):
		return conflict(c, fiber.Map{
			"error": transition.Error(),
			"from":  transition.From,
			"to":    transition.To,
		})
	case errors.As(err, &overpayment):
		return unprocessable(c, fiber.Map{
			"error":   overpayment.Error(),
			"amount":  overpayment.Amount,
			"balance": overpayment.Balance,
		})
	case errors.Is(err, billing.ErrBillNotFound),
		errors.Is(err, billing.ErrRefundNotFound),
		errors.Is(err, billing.ErrPatientNotFound),
		errors.Is(err, billing.ErrVisitNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, billing.ErrForbidden):
		return forbidden(c)
	case errors.As(err, &fiberErr):
		return err
	case errors.Is(err, billing.ErrConsistencyViolation):
		slog.ErrorContext(c.Context(), "bill consistency violation", "error", err)
		return internalError(c)
	default:
		slog.ErrorContext(c.Context(), "billing request failed", "path", c.Path(), "error", err)
		return internalError(c)
	}
}
