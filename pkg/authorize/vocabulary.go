package authorize

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type (
	Action       string
	Resource     string
	Role         string
	Domain       string
	PolicyEffect string

	// GroupSubject is a concrete principal, the user id.
	GroupSubject string
)

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionList    Action = "list"
	ActionManage  Action = "manage"  // implies create, read, update, list
	ActionExecute Action = "execute" // recompute
	ActionApprove Action = "approve" // refund approve, reject, pay

	WildcardAction Action = "*"
)

const (
	ResourceBill       Resource = "bill"
	ResourcePayment    Resource = "payment"
	ResourceAdjustment Resource = "adjustment"
	ResourceRefund     Resource = "refund"
	ResourceReport     Resource = "report"
	ResourceRBAC       Resource = "rbac"

	WildcardResource Resource = "*"
)

const (
	RolePlatformSuperAdmin Role = "role:platform:superadmin" // domain sys

	RoleClinicOwner        Role = "role:clinic:owner"
	RoleClinicAdmin        Role = "role:clinic:admin"
	RoleClinicAccountant   Role = "role:clinic:accountant"
	RoleClinicReceptionist Role = "role:clinic:receptionist"
	RoleClinicTherapist    Role = "role:clinic:therapist"

	WildcardRole Role = "*"
)

const (
	DomainSys          Domain = "sys"
	DomainPrefixClinic Domain = "clinic:"
	WildcardDomain     Domain = "*"
)

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

var (
	KnownActions = lo.Keyify([]Action{
		ActionCreate, ActionRead, ActionUpdate, ActionList, ActionManage, ActionExecute, ActionApprove,
	})
	KnownResources = lo.Keyify([]Resource{
		ResourceBill, ResourcePayment, ResourceAdjustment, ResourceRefund, ResourceReport, ResourceRBAC,
	})

	clinicRoles = []Role{
		RoleClinicOwner, RoleClinicAdmin, RoleClinicAccountant, RoleClinicReceptionist, RoleClinicTherapist,
	}
	KnownRoles = lo.Keyify(append([]Role{RolePlatformSuperAdmin}, clinicRoles...))
)

// ClinicMemberRoleToRBACRole maps the membership role names used by the
// clinic directory onto policy roles.
var ClinicMemberRoleToRBACRole = lo.SliceToMap(clinicRoles, func(r Role) (string, Role) {
	return strings.TrimPrefix(string(r), "role:clinic:"), r
})

// ClinicDomain builds the clinic:<uuid> domain.
func ClinicDomain(clinicID string) Domain {
	return DomainPrefixClinic + Domain(clinicID)
}

// DomainFromClinic returns the clinic domain, or sys for uuid.Nil.
func DomainFromClinic(clinicID uuid.UUID) Domain {
	if clinicID == uuid.Nil {
		return DomainSys
	}
	return ClinicDomain(clinicID.String())
}

func IsValidDomain(d Domain) bool {
	if d == DomainSys || d == WildcardDomain {
		return true
	}
	id, ok := strings.CutPrefix(string(d), string(DomainPrefixClinic))
	if !ok {
		return false
	}
	parsed, err := uuid.Parse(id)
	return err == nil && len(id) == 36 && parsed != uuid.Nil
}

func isClinicRole(r Role) bool { return lo.Contains(clinicRoles, r) }

// impliedByManage reports whether a manage grant also covers action.
func impliedByManage(a Action) bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionList:
		return true
	}
	return false
}

// PermissionPolicy is one p row: role, domain, resource, action, effect.
type PermissionPolicy struct {
	Subject Role
	Domain  Domain
	Object  Resource
	Action  Action
	Effect  PolicyEffect
}
