package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/openfroyo/featurekit/pkg/hooks"
	"github.com/openfroyo/featurekit/pkg/permissions"
)

// validationErrors accumulates ValidationError values.
type validationErrors []ValidationError

func (v *validationErrors) add(path, format string, args ...interface{}) {
	*v = append(*v, ValidationError{
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	})
}

// ErrorOrNil returns the errors as a *multierror.Error, or nil.
func (v validationErrors) ErrorOrNil() error {
	var result *multierror.Error
	for _, e := range v {
		result = multierror.Append(result, e)
	}
	return result.ErrorOrNil()
}

// ValidationErrors flattens err into its ValidationError values. Errors that
// are not validation errors are returned as a message-only entry.
func ValidationErrors(err error) []ValidationError {
	if err == nil {
		return nil
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		var ve ValidationError
		if errors.As(err, &ve) {
			return []ValidationError{ve}
		}
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	var out []ValidationError
	for _, e := range merr.Errors {
		out = append(out, ValidationErrors(e)...)
	}
	return out
}

// Validator checks manifests in three layers: struct tags, the CUE schema
// and referential integrity. Every layer runs and all problems are reported
// together.
type Validator struct {
	validate *validator.Validate
	schemas  *SchemaRegistry
}

// NewValidator creates a manifest validator.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(),
		schemas:  NewSchemaRegistry(),
	}
}

// Validate validates a normalized manifest.
func (v *Validator) Validate(ctx context.Context, m *Manifest) error {
	var errs validationErrors

	errs = append(errs, v.validateStruct(m)...)

	if err := v.schemas.ValidateManifest(ctx, m); err != nil {
		cause := errors.Unwrap(err)
		if cause == nil {
			cause = err
		}
		errs = append(errs, ValidationErrors(convertCUEErrors(cause))...)
	}

	errs = append(errs, checkReferences(m)...)

	return errs.ErrorOrNil()
}

// Schemas returns the schema registry.
func (v *Validator) Schemas() *SchemaRegistry {
	return v.schemas
}

func (v *Validator) validateStruct(m *Manifest) validationErrors {
	err := v.validate.Struct(m)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return validationErrors{{Message: err.Error(), Severity: "error"}}
	}

	var errs validationErrors
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed on %q", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on %q (%s)", fe.Tag(), fe.Param())
		}
		errs.add(fe.Namespace(), "%s", msg)
	}
	return errs
}

// checkReferences reports duplicate ids, dangling references, nodes with
// more than one parent, child cycles and rules that do not match the node.
func checkReferences(m *Manifest) validationErrors {
	var errs validationErrors

	nodes := make(map[string]int, len(m.Nodes))
	for i, n := range m.Nodes {
		if prev, dup := nodes[n.ID]; dup {
			errs.add(fmt.Sprintf("nodes[%d].id", i), "duplicate node id %q (first declared at nodes[%d])", n.ID, prev)
			continue
		}
		nodes[n.ID] = i
	}

	if m.Root != "" {
		if _, ok := nodes[m.Root]; !ok {
			errs.add("root", "unknown root node %q", m.Root)
		}
	}

	handlers := map[string]bool{
		string(hooks.DirectHandlerID):   true,
		string(hooks.BufferedHandlerID): true,
	}
	for i, w := range m.Windows {
		if handlers[w.ID] {
			errs.add(fmt.Sprintf("windows[%d].id", i), "window id %q is already in use", w.ID)
			continue
		}
		handlers[w.ID] = true
	}

	roles := make(map[string]bool, len(m.Roles))
	for _, r := range m.Roles {
		roles[r] = true
	}

	parents := make(map[string]string)
	for i, n := range m.Nodes {
		for j, child := range n.Children {
			path := fmt.Sprintf("nodes[%d].children[%d]", i, j)
			if _, ok := nodes[child]; !ok {
				errs.add(path, "unknown child node %q", child)
				continue
			}
			if child == n.ID {
				errs.add(path, "node %q cannot be its own child", n.ID)
				continue
			}
			if child == m.Root {
				errs.add(path, "root node %q cannot be a child", child)
				continue
			}
			if p, taken := parents[child]; taken {
				errs.add(path, "node %q is already a child of %q", child, p)
				continue
			}
			parents[child] = n.ID
		}

		declared := make(map[string]bool, len(n.Permissions))
		for _, p := range n.Permissions {
			declared[p] = true
		}
		for j, r := range n.Rules {
			path := fmt.Sprintf("nodes[%d].rules[%d]", i, j)
			if len(roles) > 0 && !roles[r.Role] {
				errs.add(path, "undeclared role %q", r.Role)
			}
			if r.Type == permissions.RuleAll && len(r.Permissions) > 0 {
				errs.add(path, "rule of type all cannot list permissions")
			}
			for _, p := range r.Permissions {
				if !declared[p] {
					errs.add(path, "permission %q is not declared by node %q", p, n.ID)
				}
			}
		}

		checkers := make(map[string]bool, len(n.Dependencies))
		for j, cs := range n.Dependencies {
			path := fmt.Sprintf("nodes[%d].dependencies[%d]", i, j)
			if checkers[cs.ID] {
				errs.add(path, "duplicate checker id %q", cs.ID)
			}
			checkers[cs.ID] = true
			for k, d := range cs.Requires {
				if d.Kind != cs.Kind {
					errs.add(fmt.Sprintf("%s.requires[%d]", path, k), "descriptor kind %q does not match checker kind %q", d.Kind, cs.Kind)
				}
			}
		}

		for j, h := range n.Hooks {
			if h.Handler != "" && !handlers[h.Handler] {
				errs.add(fmt.Sprintf("nodes[%d].hooks[%d].handler", i, j), "unknown hook handler %q", h.Handler)
			}
		}
	}

	errs = append(errs, findChildCycles(m, nodes)...)
	errs = append(errs, findModuleCycles(m, nodes, parents)...)

	return errs
}

// findChildCycles reports cycles in the children graph. Nodes already
// reported as multi-parented still take part so every cycle is found.
func findChildCycles(m *Manifest, index map[string]int) validationErrors {
	edges := make(map[string][]string, len(m.Nodes))
	for _, n := range m.Nodes {
		for _, c := range n.Children {
			if _, ok := index[c]; ok && c != n.ID {
				edges[n.ID] = append(edges[n.ID], c)
			}
		}
	}
	return findCycles(m, edges, "child cycle")
}

// findModuleCycles reports module dependencies whose activation could never
// be decided. A child is only active while its parent is, so every child
// also depends on its parent: a node requiring a module in its own subtree
// is a cycle.
func findModuleCycles(m *Manifest, index map[string]int, parents map[string]string) validationErrors {
	edges := make(map[string][]string, len(m.Nodes))
	for _, n := range m.Nodes {
		for _, cs := range n.Dependencies {
			for _, d := range cs.Requires {
				if d.Kind != "module" {
					continue
				}
				if _, ok := index[d.Key]; ok {
					edges[n.ID] = append(edges[n.ID], d.Key)
				}
			}
		}
		if p, ok := parents[n.ID]; ok {
			edges[n.ID] = append(edges[n.ID], p)
		}
	}
	return findCycles(m, edges, "module dependency cycle")
}

func findCycles(m *Manifest, edges map[string][]string, label string) validationErrors {
	const (
		unvisited = iota
		visiting
		done
	)

	var errs validationErrors
	state := make(map[string]int, len(m.Nodes))
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		state[id] = visiting
		stack = append(stack, id)
		for _, next := range edges[id] {
			switch state[next] {
			case visiting:
				cycle := []string{next}
				for i := len(stack) - 1; i >= 0 && stack[i] != next; i-- {
					cycle = append([]string{stack[i]}, cycle...)
				}
				cycle = append([]string{next}, cycle...)
				errs.add("nodes", "%s: %v", label, cycle)
			case unvisited:
				visit(next)
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, n := range m.Nodes {
		if state[n.ID] == unvisited {
			visit(n.ID)
		}
	}
	return errs
}
