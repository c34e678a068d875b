// Package policy provides Open Policy Agent (OPA) integration for featurekit.
//
// The engine installs an aggregated permission matrix (permission to roles)
// into an in-memory OPA store. Hosts can then ask authorization questions
// with Allowed and audit the matrix with Rego policies.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	matrix := aggregator.CollectGrantingRules(root)
//	if err := engine.Install(ctx, matrix, "admin", "editor"); err != nil {
//	    log.Fatal(err)
//	}
//
//	ok, err := engine.Allowed(ctx, []string{"editor"}, "edit quotes")
//
// # Audit Policies
//
// An audit policy is a Rego module whose package defines a deny set. Each
// element is either a string or an object with message, severity,
// permission and role keys:
//
//	package featurekit.audit.custom
//
//	import rego.v1
//
//	deny contains finding if {
//	    some perm, roles in data.featurekit.grants
//	    "anonymous" in roles
//	    finding := {"message": sprintf("%s is public", [perm]), "permission": perm}
//	}
//
// Two policies are built in: ungranted-permissions reports permissions no
// role holds, and undeclared-roles reports grants to roles outside the
// declared role set. Further policies are loaded from .rego and .json files
// with LoadPolicies.
package policy
