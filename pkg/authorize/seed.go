package authorize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// DefaultPolicies is the baseline billing RBAC. Clinic roles are granted in
// every clinic domain; membership decides which clinic a user acts in.
func DefaultPolicies() []PermissionPolicy {
	return []PermissionPolicy{
		// SuperAdmin: god mode
		{RolePlatformSuperAdmin, DomainSys, WildcardResource, WildcardAction, EffectAllow},

		// Owner: everything inside the clinic
		{RoleClinicOwner, WildcardDomain, WildcardResource, WildcardAction, EffectAllow},

		// Admin: full billing incl. refund approval and recompute
		{RoleClinicAdmin, WildcardDomain, ResourceBill, ActionManage, EffectAllow},
		{RoleClinicAdmin, WildcardDomain, ResourceBill, ActionExecute, EffectAllow},
		{RoleClinicAdmin, WildcardDomain, ResourcePayment, ActionManage, EffectAllow},
		{RoleClinicAdmin, WildcardDomain, ResourceAdjustment, ActionManage, EffectAllow},
		{RoleClinicAdmin, WildcardDomain, ResourceRefund, ActionManage, EffectAllow},
		{RoleClinicAdmin, WildcardDomain, ResourceRefund, ActionApprove, EffectAllow},
		{RoleClinicAdmin, WildcardDomain, ResourceReport, ActionRead, EffectAllow},

		// Accountant: money movements and reports, approves refunds
		{RoleClinicAccountant, WildcardDomain, ResourceBill, ActionRead, EffectAllow},
		{RoleClinicAccountant, WildcardDomain, ResourceBill, ActionList, EffectAllow},
		{RoleClinicAccountant, WildcardDomain, ResourceBill, ActionExecute, EffectAllow},
		{RoleClinicAccountant, WildcardDomain, ResourcePayment, ActionManage, EffectAllow},
		{RoleClinicAccountant, WildcardDomain, ResourceAdjustment, ActionManage, EffectAllow},
		{RoleClinicAccountant, WildcardDomain, ResourceRefund, ActionManage, EffectAllow},
		{RoleClinicAccountant, WildcardDomain, ResourceRefund, ActionApprove, EffectAllow},
		{RoleClinicAccountant, WildcardDomain, ResourceReport, ActionRead, EffectAllow},

		// Receptionist: bills, payments and refund drafts
		{RoleClinicReceptionist, WildcardDomain, ResourceBill, ActionManage, EffectAllow},
		{RoleClinicReceptionist, WildcardDomain, ResourcePayment, ActionCreate, EffectAllow},
		{RoleClinicReceptionist, WildcardDomain, ResourcePayment, ActionRead, EffectAllow},
		{RoleClinicReceptionist, WildcardDomain, ResourceRefund, ActionCreate, EffectAllow},
		{RoleClinicReceptionist, WildcardDomain, ResourceRefund, ActionRead, EffectAllow},
		{RoleClinicReceptionist, WildcardDomain, ResourceRefund, ActionList, EffectAllow},
		{RoleClinicReceptionist, WildcardDomain, ResourceRefund, ActionUpdate, EffectAllow},

		// Therapist: read-only on bills
		{RoleClinicTherapist, WildcardDomain, ResourceBill, ActionRead, EffectAllow},
		{RoleClinicTherapist, WildcardDomain, ResourceBill, ActionList, EffectAllow},
	}
}

// SeedDefaultPolicies sets up the baseline RBAC policies for the system.
func SeedDefaultPolicies(ctx context.Context, auth IAuthorization) error {
	logger := slog.Default()

	policies := DefaultPolicies()
	for _, p := range policies {
		added, err := auth.AddPermission(ctx, p.Subject, p.Domain, p.Object, p.Action, p.Effect)
		if err != nil {
			logger.Error("failed to add policy", "policy", p, "error", err)
			return err
		}
		if added {
			logger.Debug("added policy", "role", p.Subject, "domain", p.Domain, "resource", p.Object, "action", p.Action)
		}
	}

	logger.Info("seeded default RBAC policies", "count", len(policies))
	return nil
}

// AssignClinicRole grants a clinic role to a user for one clinic.
func AssignClinicRole(ctx context.Context, auth IAuthorization, userID, clinicID string, role Role) error {
	if !isClinicRole(role) {
		return fmt.Errorf("%w: %q is not a clinic role", ErrInvalidArgs, role)
	}

	_, err := auth.AddRoleForUserInDomain(ctx, GroupSubject(userID), role, ClinicDomain(clinicID))
	return err
}

// RemoveClinicRole removes a clinic role from a user for one clinic.
func RemoveClinicRole(ctx context.Context, auth IAuthorization, userID, clinicID string, role Role) error {
	_, err := auth.RemoveRoleForUserInDomain(ctx, GroupSubject(userID), role, ClinicDomain(clinicID))
	return err
}

// GetClinicRoles returns all roles a user has in a clinic. An empty result
// means the user is not a member.
func GetClinicRoles(ctx context.Context, auth IAuthorization, userID, clinicID string) ([]Role, error) {
	return auth.GetRolesForUserInDomain(ctx, GroupSubject(userID), ClinicDomain(clinicID))
}

// AssignSuperAdmin grants the platform superadmin role. Use with care.
func AssignSuperAdmin(ctx context.Context, auth IAuthorization, userID string) error {
	_, err := auth.AddRoleForUserInDomain(ctx, GroupSubject(userID), RolePlatformSuperAdmin, DomainSys)
	return err
}

// IsSuperAdmin reports whether the user holds the platform superadmin role.
func IsSuperAdmin(ctx context.Context, auth IAuthorization, userID string) (bool, error) {
	roles, err := auth.GetRolesForUserInDomain(ctx, GroupSubject(userID), DomainSys)
	if err != nil {
		return false, err
	}
	return lo.Contains(roles, RolePlatformSuperAdmin), nil
}
