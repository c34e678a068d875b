package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/featurekit/pkg/dependencies"
	"github.com/openfroyo/featurekit/pkg/permissions"
)

// ManifestVersion is the only manifest version understood by this package.
const ManifestVersion = "v1"

// Manifest declares a functionality tree.
type Manifest struct {
	// Version is the manifest format version.
	Version string `yaml:"version" json:"version" validate:"required,eq=v1"`

	// Root is the id of the tree root.
	Root string `yaml:"root" json:"root" validate:"required"`

	// Roles lists the roles grants may name. Empty means any role.
	Roles []string `yaml:"roles,omitempty" json:"roles,omitempty" validate:"dive,required"`

	// Windows declares scoped hook handlers nodes can route hooks to.
	Windows []WindowSpec `yaml:"windows,omitempty" json:"windows,omitempty" validate:"dive"`

	// Nodes lists every node of the tree.
	Nodes []NodeSpec `yaml:"nodes" json:"nodes" validate:"required,min=1,dive"`
}

// NodeSpec declares one node.
type NodeSpec struct {
	// ID is the unique node id (e.g., "quotes.pdf").
	ID string `yaml:"id" json:"id" validate:"required"`

	// Name is the human-readable name. Defaults to the id.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Version is reported to module dependency checks of other nodes.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Active is the node's own active flag. Nil means active.
	Active *bool `yaml:"active,omitempty" json:"active,omitempty"`

	// Disabled switches the node and its subtree off.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// Children lists child node ids in order.
	Children []string `yaml:"children,omitempty" json:"children,omitempty" validate:"dive,required"`

	// Permissions lists the permission ids the node declares.
	Permissions []string `yaml:"permissions,omitempty" json:"permissions,omitempty" validate:"dive,required"`

	// Rules grant the node's permissions to roles.
	Rules []permissions.Rule `yaml:"rules,omitempty" json:"rules,omitempty" validate:"dive"`

	// Dependencies gate the node's activation.
	Dependencies []CheckerSpec `yaml:"dependencies,omitempty" json:"dependencies,omitempty" validate:"dive"`

	// Setup defers the node's setup to a host event.
	Setup *SetupSpec `yaml:"setup,omitempty" json:"setup,omitempty"`

	// Hooks are registered while the node is active.
	Hooks []HookSpec `yaml:"hooks,omitempty" json:"hooks,omitempty" validate:"dive"`
}

// IsActive returns the node's own active flag.
func (n NodeSpec) IsActive() bool {
	return n.Active == nil || *n.Active
}

// DisplayName returns the name, falling back to the id.
func (n NodeSpec) DisplayName() string {
	if n.Name == "" {
		return n.ID
	}
	return n.Name
}

// CheckerSpec declares a group of descriptors checked together. A checker id
// containing "optional" does not block activation.
type CheckerSpec struct {
	ID       string                    `yaml:"id" json:"id" validate:"required"`
	Kind     dependencies.Kind         `yaml:"kind" json:"kind" validate:"required,oneof=extension function setting module"`
	Requires []dependencies.Descriptor `yaml:"requires" json:"requires" validate:"required,min=1,dive"`
}

// SetupSpec binds a node's setup to a host event.
type SetupSpec struct {
	Event    string `yaml:"event" json:"event" validate:"required"`
	Priority int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// HookSpec declares a hook a node registers.
type HookSpec struct {
	// Kind is action or filter.
	Kind string `yaml:"kind" json:"kind" validate:"required,oneof=action filter"`

	// Event is the host event name.
	Event string `yaml:"event" json:"event" validate:"required"`

	// Callback is the callback id, unique per node and event.
	Callback string `yaml:"callback" json:"callback" validate:"required"`

	// Priority defaults to 10.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`

	// Arity defaults to 1.
	Arity int `yaml:"arity,omitempty" json:"arity,omitempty" validate:"gte=0"`

	// Handler is "direct", "buffered" or a window id. Empty uses the default.
	Handler string `yaml:"handler,omitempty" json:"handler,omitempty"`
}

// WindowSpec declares a scoped hook handler active between two events.
type WindowSpec struct {
	ID    string      `yaml:"id" json:"id" validate:"required"`
	Start TriggerSpec `yaml:"start" json:"start"`
	End   TriggerSpec `yaml:"end" json:"end"`
}

// TriggerSpec is an event and the priority of the handler's hook on it.
type TriggerSpec struct {
	Event    string `yaml:"event" json:"event" validate:"required"`
	Priority int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Normalize fills defaults that depend on other fields. It is idempotent.
func (m *Manifest) Normalize() {
	for i := range m.Nodes {
		for j := range m.Nodes[i].Dependencies {
			cs := &m.Nodes[i].Dependencies[j]
			for k := range cs.Requires {
				if cs.Requires[k].Kind == "" {
					cs.Requires[k].Kind = cs.Kind
				}
			}
		}
	}
}

// Node returns the spec with the given id.
func (m *Manifest) Node(id string) (NodeSpec, bool) {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the manifest path to the error (e.g., "nodes[2].children").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// Error implements error.
func (e ValidationError) Error() string {
	var parts []string
	switch {
	case e.File != "" && e.Line > 0:
		parts = append(parts, fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column))
	case e.File != "":
		parts = append(parts, e.File)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	return strings.Join(append(parts, e.Message), ": ")
}

// LoadedManifest is a manifest plus where it came from.
type LoadedManifest struct {
	Manifest *Manifest `json:"manifest"`

	// SourceFiles are the files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the manifest was parsed.
	ParsedAt time.Time `json:"parsed_at"`
}
