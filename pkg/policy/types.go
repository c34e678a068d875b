package policy

import "time"

// Severity represents the severity level of an audit finding.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that should block installation.
	SeverityError Severity = "error"
)

// Policy is a Rego audit policy. Its package must define a deny set.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for findings that do not set one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is evaluated by Audit.
	Enabled bool `json:"enabled"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// LoadedAt is when the policy was loaded.
	LoadedAt time.Time `json:"loaded_at"`
}

// Finding is a single audit result.
type Finding struct {
	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`

	// Message describes the finding.
	Message string `json:"message"`

	// Severity is the finding severity.
	Severity Severity `json:"severity"`

	// Permission is the permission concerned, if any.
	Permission string `json:"permission,omitempty"`

	// Role is the role concerned, if any.
	Role string `json:"role,omitempty"`
}

// AuditResult is the outcome of Audit.
type AuditResult struct {
	// Passed is false when any finding has error severity.
	Passed bool `json:"passed"`

	// Findings lists every finding, ordered by policy then message.
	Findings []Finding `json:"findings"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the audit ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Grants is the document written to the policy store: permission to roles,
// plus the set of roles the grants are allowed to name.
type Grants struct {
	Permissions map[string][]string `json:"permissions"`
	Roles       []string            `json:"roles,omitempty"`
}

// document renders g as the JSON-compatible value stored under
// data.featurekit.
func (g Grants) document() map[string]interface{} {
	perms := make(map[string]interface{}, len(g.Permissions))
	for p, roles := range g.Permissions {
		list := make([]interface{}, len(roles))
		for i, r := range roles {
			list[i] = r
		}
		perms[p] = list
	}
	roles := make([]interface{}, len(g.Roles))
	for i, r := range g.Roles {
		roles[i] = r
	}
	return map[string]interface{}{
		"grants": perms,
		"roles":  roles,
	}
}
