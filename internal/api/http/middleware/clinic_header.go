package middleware

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Alijeyrad/simorq_billing/pkg/authorize"
	"github.com/Alijeyrad/simorq_billing/pkg/constants"
	pasetotoken "github.com/Alijeyrad/simorq_billing/pkg/paseto"
	"github.com/Alijeyrad/simorq_billing/pkg/reqctx"
)

const (
	LocalsClinicID = "clinic_id"
	LocalsRoles    = "clinic_roles"
)

// ClinicHeader reads the clinic ID from the X-Clinic-ID header and checks
// that the authenticated user holds at least one role in that clinic.
// Platform superadmins act in any clinic. On success the clinic scope is
// stored in Locals and in the request context for handlers and RBAC.
func ClinicHeader(auth authorize.IAuthorization) fiber.Handler {
	return func(c fiber.Ctx) error {
		idStr := c.Get(constants.HeaderClinicID)
		if idStr == "" {
			return fiber.NewError(fiber.StatusBadRequest, "X-Clinic-ID header is required")
		}

		clinicID, err := uuid.Parse(idStr)
		if err != nil || clinicID == uuid.Nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid X-Clinic-ID value")
		}

		claims, ok := pasetotoken.ClaimsFromFiber(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		userID := claims.UserID.String()

		roles, err := authorize.GetClinicRoles(c.Context(), auth, userID, clinicID.String())
		if err != nil {
			return err
		}
		if len(roles) == 0 {
			super, err := authorize.IsSuperAdmin(c.Context(), auth, userID)
			if err != nil {
				return err
			}
			if !super {
				return fiber.ErrForbidden
			}
			roles = []authorize.Role{authorize.RolePlatformSuperAdmin}
		}

		names := lo.Map(roles, func(r authorize.Role, _ int) string { return string(r) })
		c.Locals(LocalsClinicID, clinicID.String())
		c.Locals(LocalsRoles, names)
		c.SetContext(reqctx.WithClinic(c.Context(), &reqctx.ClinicScope{ClinicID: clinicID, Roles: names}))

		return c.Next()
	}
}
