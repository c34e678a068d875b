package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Each schema is a CUE
// definition looked up by name.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	// Built-in schemas are constants; a compile failure is a programming error.
	for name, def := range map[string]string{
		"manifest":   "#Manifest",
		"node":       "#Node",
		"checker":    "#Checker",
		"descriptor": "#Descriptor",
		"hook":       "#Hook",
		"window":     "#Window",
	} {
		if err := sr.RegisterSchema(name, def, builtinManifestSchema); err != nil {
			panic(err)
		}
	}
}

// RegisterSchema compiles source and registers its definition def (e.g.
// "#Manifest") under name.
func (sr *SchemaRegistry) RegisterSchema(name, def, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	schema := val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, def)
	}

	sr.schemas[name] = schema
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateManifest validates a manifest against the manifest schema.
func (sr *SchemaRegistry) ValidateManifest(ctx context.Context, m *Manifest) error {
	return sr.ValidateAgainstSchema(ctx, "manifest", m)
}

// Built-in schema definitions

const builtinManifestSchema = `
// Identifiers of nodes and windows
#ID: string & =~"^[a-z0-9][a-z0-9_.-]*$"

#NonEmpty: string & !=""

// Manifest schema for featurekit functionality trees
#Manifest: {
	version: "v1"
	root:    #ID
	roles?: [...#NonEmpty]
	windows?: [...#Window]
	nodes: [#Node, ...#Node]
}

#Node: {
	// ID is the unique node id
	id: #ID

	name?:     string
	version?:  string
	active?:   bool
	disabled?: bool

	// Children are referenced by id
	children?: [...#ID]

	permissions?: [...#NonEmpty]
	rules?: [...#Rule]
	dependencies?: [...#Checker]

	setup?: {
		event:     #NonEmpty
		priority?: int
	}

	hooks?: [...#Hook]
}

#Rule: {
	role: #NonEmpty
	type: "all" | "include" | "exclude"
	permissions?: [...#NonEmpty]
}

#Kind: "extension" | "function" | "setting" | "module"

#Checker: {
	id:   #NonEmpty
	kind: #Kind
	requires: [#Descriptor, ...#Descriptor]
}

#Descriptor: {
	kind?:      #Kind
	key:        #NonEmpty
	expected?:  string
	compare?:   "exact" | "min"
	predicate?: string
}

#Hook: {
	kind:      "action" | "filter"
	event:     #NonEmpty
	callback:  #NonEmpty
	priority?: int
	arity?:    int & >=0
	handler?:  string
}

#Trigger: {
	event:     #NonEmpty
	priority?: int
}

#Window: {
	id:    #ID
	start: #Trigger
	end:   #Trigger
}
`
