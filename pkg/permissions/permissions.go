package permissions

import (
	"context"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/cache"
	"github.com/openfroyo/featurekit/pkg/node"
	"github.com/openfroyo/featurekit/pkg/telemetry"
)

// RuleType selects which of a node's permissions a rule grants.
type RuleType string

const (
	// RuleAll grants every permission declared by the node.
	RuleAll RuleType = "all"
	// RuleInclude grants only the listed permissions.
	RuleInclude RuleType = "include"
	// RuleExclude grants every declared permission except the listed ones.
	RuleExclude RuleType = "exclude"
)

// Rule grants a role some of the permissions declared by a node.
type Rule struct {
	Role        string   `yaml:"role" json:"role" validate:"required"`
	Type        RuleType `yaml:"type" json:"type" validate:"required,oneof=all include exclude"`
	Permissions []string `yaml:"permissions,omitempty" json:"permissions,omitempty"`
}

// Bearer is a node that declares permissions and granting rules.
type Bearer interface {
	node.Node

	// Permissions returns the permission ids declared by this node only.
	Permissions() []string

	// GrantingRules returns the node's rules in declaration order.
	GrantingRules() []Rule
}

// Matrix maps a permission id to the roles granted it.
type Matrix map[string][]string

// Permissions returns the permission ids in sorted order.
func (m Matrix) Permissions() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ByRole inverts the matrix into role -> sorted permission ids.
func (m Matrix) ByRole() map[string][]string {
	byRole := make(map[string][]string)
	for _, perm := range m.Permissions() {
		for _, role := range m[perm] {
			byRole[role] = append(byRole[role], perm)
		}
	}
	return byRole
}

// Granted reports whether role is granted perm.
func (m Matrix) Granted(role, perm string) bool {
	for _, r := range m[perm] {
		if r == role {
			return true
		}
	}
	return false
}

func (m Matrix) clone() Matrix {
	out := make(Matrix, len(m))
	for p, roles := range m {
		cp := make([]string, len(roles))
		copy(cp, roles)
		out[p] = cp
	}
	return out
}

// Cache key namespaces.
const (
	kindPermissions = "permissions"
	kindRules       = "granting_rules"
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTelemetry attaches logging, tracing, metrics and events.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(a *Aggregator) {
		if tel == nil {
			return
		}
		if tel.Logger != nil {
			a.logger = tel.Logger.Zerolog()
		}
		a.tracer = tel.Tracer
		a.metrics = tel.Metrics
		a.events = tel.Events
	}
}

// WithLogger sets the aggregator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// Aggregator reduces a subtree of Bearers into a permission set and a grant
// matrix. Results are memoized per node id in the cache store until
// Invalidate is called.
type Aggregator struct {
	store      cache.Store
	generation uint64

	logger  zerolog.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// NewAggregator creates an aggregator memoizing into store. A nil store gets
// a fresh in-memory one.
func NewAggregator(store cache.Store, opts ...Option) *Aggregator {
	if store == nil {
		store = cache.NewMemory()
	}
	a := &Aggregator{store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("component", "permissions").Logger()
	return a
}

// Generation returns the current cache generation.
func (a *Aggregator) Generation() uint64 {
	return a.generation
}

// Invalidate drops every memoized result. Call it after declared permissions
// or rules change.
func (a *Aggregator) Invalidate() {
	removed := a.store.DeletePrefix(kindPermissions+":") + a.store.DeletePrefix(kindRules+":")
	a.generation++
	a.logger.Debug().Uint64("generation", a.generation).Int("evicted", removed).Msg("Permission cache invalidated")
}

func (a *Aggregator) key(kind, id string) string {
	return cache.Key(kind, strconv.FormatUint(a.generation, 10), id)
}

// CollectPermissions returns the permissions declared by n and every enabled
// Bearer descendant reachable through Bearers, de-duplicated in discovery
// order.
func (a *Aggregator) CollectPermissions(n Bearer) []string {
	key := a.key(kindPermissions, n.ID())
	if v, ok := a.store.Get(key); ok {
		a.metrics.RecordPermissionCache(kindPermissions, true)
		return append([]string(nil), v.([]string)...)
	}
	a.metrics.RecordPermissionCache(kindPermissions, false)

	timer := telemetry.NewTimer()
	_, span := a.tracer.StartSpan(context.Background(), "permissions.collect",
		telemetry.AttrNodeID.String(n.ID()),
		telemetry.AttrPermission.String(kindPermissions),
	)
	defer span.End()

	seen := make(map[string]bool)
	var perms []string
	add := func(list []string) {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				perms = append(perms, p)
			}
		}
	}

	add(n.Permissions())
	for _, child := range bearerChildren(n) {
		add(a.CollectPermissions(child))
	}

	a.store.Set(key, perms, 0)
	a.metrics.RecordPermissionCompile(kindPermissions, timer.Duration())
	a.events.PublishPermissionsCompiled(n.ID(), kindPermissions, len(perms))
	return append([]string(nil), perms...)
}

// CollectGrantingRules returns the grant matrix of the subtree rooted at n.
//
// The node's own permissions start with no roles and its rules are applied in
// order. Each child's matrix is then merged in; a permission already present
// keeps its roles, so a child never overrides an ancestor or an earlier
// sibling.
func (a *Aggregator) CollectGrantingRules(n Bearer) Matrix {
	key := a.key(kindRules, n.ID())
	if v, ok := a.store.Get(key); ok {
		a.metrics.RecordPermissionCache(kindRules, true)
		return v.(Matrix).clone()
	}
	a.metrics.RecordPermissionCache(kindRules, false)

	timer := telemetry.NewTimer()
	_, span := a.tracer.StartSpan(context.Background(), "permissions.granting_rules",
		telemetry.AttrNodeID.String(n.ID()),
		telemetry.AttrPermission.String(kindRules),
	)
	defer span.End()

	own := n.Permissions()
	matrix := make(Matrix, len(own))
	for _, p := range own {
		matrix[p] = []string{}
	}

	for _, rule := range n.GrantingRules() {
		for _, p := range a.selectPermissions(n.ID(), own, rule) {
			matrix[p] = appendRole(matrix[p], rule.Role)
		}
	}

	for _, child := range bearerChildren(n) {
		for p, roles := range a.CollectGrantingRules(child) {
			if _, exists := matrix[p]; exists {
				continue
			}
			matrix[p] = roles
		}
	}

	a.store.Set(key, matrix, 0)
	a.metrics.RecordPermissionCompile(kindRules, timer.Duration())
	a.events.PublishPermissionsCompiled(n.ID(), kindRules, len(matrix))
	return matrix.clone()
}

// selectPermissions returns the subset of own that rule grants.
func (a *Aggregator) selectPermissions(nodeID string, own []string, rule Rule) []string {
	listed := make(map[string]bool, len(rule.Permissions))
	for _, p := range rule.Permissions {
		listed[p] = true
	}

	var out []string
	switch rule.Type {
	case RuleAll:
		out = own
	case RuleInclude:
		for _, p := range own {
			if listed[p] {
				out = append(out, p)
			}
		}
	case RuleExclude:
		for _, p := range own {
			if !listed[p] {
				out = append(out, p)
			}
		}
	default:
		a.logger.Warn().Str("node_id", nodeID).Str("role", rule.Role).Str("type", string(rule.Type)).
			Msg("Ignoring granting rule with unknown type")
	}
	return out
}

func appendRole(roles []string, role string) []string {
	for _, r := range roles {
		if r == role {
			return roles
		}
	}
	return append(roles, role)
}

// bearerChildren returns the enabled children of n that bear permissions.
func bearerChildren(n node.Node) []Bearer {
	var out []Bearer
	for _, child := range n.Children() {
		if child.IsDisabled() {
			continue
		}
		if b, ok := child.(Bearer); ok {
			out = append(out, b)
		}
	}
	return out
}
