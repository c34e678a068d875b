package policy

const authzModule = `package featurekit.authz

import rego.v1

default allow := false

# A request is allowed when any of the caller's roles is granted the permission.
allow if {
	some role in input.roles
	role in data.featurekit.grants[input.permission]
}
`

// authzQuery is the decision evaluated by Allowed.
const authzQuery = "data.featurekit.authz.allow"

// GetBuiltinPolicies returns the built-in audit policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		ungrantedPermissionsPolicy(),
		undeclaredRolesPolicy(),
	}
}

// ungrantedPermissionsPolicy reports permissions no role holds.
func ungrantedPermissionsPolicy() Policy {
	return Policy{
		Name:        "ungranted-permissions",
		Description: "Reports permissions that are not granted to any role",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package featurekit.audit.ungranted

import rego.v1

deny contains finding if {
	some perm, roles in data.featurekit.grants
	count(roles) == 0
	finding := {
		"message": sprintf("Permission %s is not granted to any role", [perm]),
		"permission": perm,
	}
}
`,
	}
}

// undeclaredRolesPolicy reports grants to roles outside the declared role
// set. It is silent when no roles are declared.
func undeclaredRolesPolicy() Policy {
	return Policy{
		Name:        "undeclared-roles",
		Description: "Reports grants to roles that are not declared",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package featurekit.audit.roles

import rego.v1

deny contains finding if {
	count(data.featurekit.roles) > 0
	some perm, roles in data.featurekit.grants
	some role in roles
	not role in data.featurekit.roles
	finding := {
		"message": sprintf("Permission %s is granted to undeclared role %s", [perm, role]),
		"permission": perm,
		"role": role,
	}
}
`,
	}
}
