package auth

import "strings"

// Role is a staff access tier stored on users/{uid}.role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
)

// FallbackRole is assigned when a staff member has no stored role.
const FallbackRole = RoleCashier

// Capability is a discrete permission checked by handlers.
type Capability string

const (
	CapCatalogRead    Capability = "catalog.read"
	CapCatalogWrite   Capability = "catalog.write"
	CapCustomersRead  Capability = "customers.read"
	CapCustomersWrite Capability = "customers.write"
	CapOrdersCompose  Capability = "orders.compose"
	CapOrdersRead     Capability = "orders.read"
	CapOrdersPay      Capability = "orders.pay"
	CapOrdersDelete   Capability = "orders.delete"
	CapReportsRead    Capability = "reports.read"
	CapReportsExport  Capability = "reports.export"
	CapStaffManage    Capability = "staff.manage"
)

var capabilityRoles = map[Capability][]Role{
	CapCatalogRead:    {RoleAdmin, RoleCashier},
	CapCatalogWrite:   {RoleAdmin},
	CapCustomersRead:  {RoleAdmin, RoleCashier},
	CapCustomersWrite: {RoleAdmin, RoleCashier},
	CapOrdersCompose:  {RoleAdmin, RoleCashier},
	CapOrdersRead:     {RoleAdmin, RoleCashier},
	CapOrdersPay:      {RoleAdmin, RoleCashier},
	CapOrdersDelete:   {RoleAdmin},
	CapReportsRead:    {RoleAdmin, RoleCashier},
	CapReportsExport:  {RoleAdmin},
	CapStaffManage:    {RoleAdmin},
}

// ParseRole normalises raw into a known role. Unknown values report false.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleCashier:
		return RoleCashier, true
	default:
		return "", false
	}
}

// Allows reports whether role holds capability. Admin holds every capability.
func (r Role) Allows(capability Capability) bool {
	if r == RoleAdmin {
		return true
	}
	for _, allowed := range capabilityRoles[capability] {
		if allowed == r {
			return true
		}
	}
	return false
}

// Capabilities lists every capability held by role, for the /me payload.
func (r Role) Capabilities() []Capability {
	out := make([]Capability, 0, len(capabilityRoles))
	for _, capability := range allCapabilities {
		if r.Allows(capability) {
			out = append(out, capability)
		}
	}
	return out
}

var allCapabilities = []Capability{
	CapCatalogRead, CapCatalogWrite,
	CapCustomersRead, CapCustomersWrite,
	CapOrdersCompose, CapOrdersRead, CapOrdersPay, CapOrdersDelete,
	CapReportsRead, CapReportsExport,
	CapStaffManage,
}
