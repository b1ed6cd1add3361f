package access

// Reason explains an evaluation outcome. Denials are ordinary data, not
// errors; callers treat a denied Decision as a first-class result.
type Reason string

const (
	// Allow reasons.
	ReasonRootGrant         Reason = "root_grant"
	ReasonDirectGrant       Reason = "direct_grant"
	ReasonRoleGrant         Reason = "role_grant"
	ReasonEmergencyOverride Reason = "emergency_override"

	// Deny reasons.
	ReasonPermissionInactive    Reason = "permission_inactive"
	ReasonDepartmentScopeDenied Reason = "department_scope_denied"
	ReasonEmergencyExhausted    Reason = "emergency_override_exhausted"
	ReasonNoGrant               Reason = "no_grant"
)

// Decision is the result of evaluating a single permission query.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	Reason     Reason `json:"reason"`
	Permission string `json:"permission"`
}

func allow(permission string, reason Reason) Decision {
	return Decision{Allowed: true, Reason: reason, Permission: permission}
}

func deny(permission string, reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason, Permission: permission}
}
