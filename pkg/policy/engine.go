package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/permissions"
)

// Engine installs aggregated grants into an OPA store, answers authorization
// queries against them and audits them with Rego policies.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	grants   Grants
	allow    rego.PreparedEvalQuery
	logger   zerolog.Logger
}

// compiledPolicy represents a parsed audit policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    string
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in audit policies and an
// empty grant set.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(&builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	if err := e.install(context.Background(), Grants{Permissions: map[string][]string{}}); err != nil {
		return nil, err
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// Install replaces the installed grants with matrix. When roles is not empty
// it is the set of declared roles checked by the undeclared-roles audit.
func (e *Engine) Install(ctx context.Context, matrix permissions.Matrix, roles ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	grants := Grants{Permissions: make(map[string][]string, len(matrix)), Roles: roles}
	for perm, granted := range matrix {
		grants.Permissions[perm] = append([]string{}, granted...)
	}
	return e.install(ctx, grants)
}

func (e *Engine) install(ctx context.Context, grants Grants) error {
	store := inmem.NewFromObject(map[string]interface{}{
		"featurekit": grants.document(),
	})

	allow, err := rego.New(
		rego.Module("authz.rego", authzModule),
		rego.Query(authzQuery),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare authorization query: %w", err)
	}

	e.store = store
	e.grants = grants
	e.allow = allow

	e.logger.Debug().
		Int("permissions", len(grants.Permissions)).
		Int("roles", len(grants.Roles)).
		Msg("Grants installed")
	return nil
}

// Grants returns the installed grants.
func (e *Engine) Grants() Grants {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.grants
}

// Allowed reports whether any of roles is granted perm.
func (e *Engine) Allowed(ctx context.Context, roles []string, perm string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if roles == nil {
		roles = []string{}
	}
	results, err := e.allow.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"roles":      roles,
		"permission": perm,
	}))
	if err != nil {
		return false, fmt.Errorf("authorization query failed: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, _ := results[0].Expressions[0].Value.(bool)
	return allowed, nil
}

// Audit evaluates every enabled audit policy against the installed grants.
// Policies that fail to evaluate are reported as warnings.
func (e *Engine) Audit(ctx context.Context) (*AuditResult, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &AuditResult{Passed: true, Findings: []Finding{}}

	for _, name := range e.policyNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		findings, err := e.evaluatePolicy(ctx, cp)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", name).Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, fmt.Sprintf("Policy %s evaluation failed: %v", name, err))
			continue
		}
		result.Findings = append(result.Findings, findings...)
	}

	sort.SliceStable(result.Findings, func(i, j int) bool {
		if result.Findings[i].Policy != result.Findings[j].Policy {
			return result.Findings[i].Policy < result.Findings[j].Policy
		}
		return result.Findings[i].Message < result.Findings[j].Message
	})
	for _, f := range result.Findings {
		if f.Severity == SeverityError {
			result.Passed = false
			break
		}
	}
	result.EvaluatedAt = time.Now()

	e.logger.Debug().
		Int("findings", len(result.Findings)).
		Dur("duration", time.Since(startTime)).
		Msg("Grant audit completed")
	return result, nil
}

// evaluatePolicy evaluates the deny set of a single policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy) ([]Finding, error) {
	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(cp.query),
		rego.Store(e.store),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var findings []Finding
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			findings = append(findings, createFinding(cp.policy, d))
		}
	}
	return findings, nil
}

// createFinding creates a Finding from a deny set element.
func createFinding(policy *Policy, value interface{}) Finding {
	finding := Finding{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := value.(type) {
	case string:
		finding.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			finding.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			finding.Severity = Severity(sev)
		}
		if perm, ok := v["permission"].(string); ok {
			finding.Permission = perm
		}
		if role, ok := v["role"].(string); ok {
			finding.Role = role
		}
	default:
		finding.Message = fmt.Sprintf("%v", value)
	}

	return finding
}

// LoadPolicies loads additional audit policies from files or directories.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded successfully")
	return nil
}

// AddPolicy compiles and adds a single audit policy.
func (e *Engine) AddPolicy(policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.compileAndStorePolicy(&policy)
}

// compileAndStorePolicy parses a policy and derives its deny query from the
// module package.
func (e *Engine) compileAndStorePolicy(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    module.Package.Path.String() + ".deny",
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled successfully")
	return nil
}

func (e *Engine) policyNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.policyNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
