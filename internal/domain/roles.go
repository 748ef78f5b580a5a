package domain

// Role is the dashboard role of an authenticated user.
type Role string

const (
	ROLE_SURVIVOR   Role = "survivor"
	ROLE_CAREGIVER  Role = "caregiver"
	ROLE_CLINICIAN  Role = "clinician"
	ROLE_RESEARCHER Role = "researcher"
)

// IsValid validates the role.
func (r Role) IsValid() bool {
	_, ok := permissionMatrix[r]
	return ok
}

// Permission is a capability granted to roles.
type Permission string

const (
	PERM_RECORD_ENTRIES       Permission = "record_entries"
	PERM_VIEW_OWN_ENTRIES     Permission = "view_own_entries"
	PERM_VIEW_PATIENT_ENTRIES Permission = "view_patient_entries"
	PERM_VIEW_AGGREGATE_DATA  Permission = "view_aggregate_data"
	PERM_USE_ASSISTANT        Permission = "use_assistant"
	PERM_EXPORT_DATA          Permission = "export_data"
)

// Permissions lists every permission known to the matrix.
var Permissions = []Permission{
	PERM_RECORD_ENTRIES,
	PERM_VIEW_OWN_ENTRIES,
	PERM_VIEW_PATIENT_ENTRIES,
	PERM_VIEW_AGGREGATE_DATA,
	PERM_USE_ASSISTANT,
	PERM_EXPORT_DATA,
}

var permissionMatrix = map[Role]map[Permission]bool{
	ROLE_SURVIVOR: {
		PERM_RECORD_ENTRIES:   true,
		PERM_VIEW_OWN_ENTRIES: true,
		PERM_USE_ASSISTANT:    true,
		PERM_EXPORT_DATA:      true,
	},
	ROLE_CAREGIVER: {
		PERM_RECORD_ENTRIES:   true,
		PERM_VIEW_OWN_ENTRIES: true,
		PERM_USE_ASSISTANT:    true,
	},
	ROLE_CLINICIAN: {
		PERM_VIEW_OWN_ENTRIES:     true,
		PERM_VIEW_PATIENT_ENTRIES: true,
		PERM_VIEW_AGGREGATE_DATA:  true,
		PERM_USE_ASSISTANT:        true,
		PERM_EXPORT_DATA:          true,
	},
	ROLE_RESEARCHER: {
		PERM_VIEW_AGGREGATE_DATA: true,
	},
}

// HasPermission resolves a role/permission pair against the matrix.
// Unknown roles hold no permissions.
func HasPermission(role Role, perm Permission) bool {
	return permissionMatrix[role][perm]
}

// PermissionsFor returns the permissions granted to a role, in declaration order.
func PermissionsFor(role Role) []Permission {
	var out []Permission
	for _, p := range Permissions {
		if HasPermission(role, p) {
			out = append(out, p)
		}
	}
	return out
}
