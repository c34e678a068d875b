package dependencies

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment answers questions about the host the nodes run in.
type Environment interface {
	// Extension returns the installed version of an extension.
	Extension(name string) (version string, ok bool)

	// Function reports whether a named function is available.
	Function(name string) bool

	// Setting returns a runtime setting.
	Setting(name string) (value string, ok bool)

	// Module reports whether a sibling module is known, active, and its version.
	Module(id string) (active bool, version string, ok bool)
}

// ModuleState is a sibling module entry in a StaticEnvironment.
type ModuleState struct {
	Active  bool   `yaml:"active"`
	Version string `yaml:"version"`
}

// StaticEnvironment is an Environment backed by fixed values, typically
// loaded from a YAML fixture.
type StaticEnvironment struct {
	Extensions map[string]string      `yaml:"extensions"`
	Functions  []string               `yaml:"functions"`
	Settings   map[string]string      `yaml:"settings"`
	Modules    map[string]ModuleState `yaml:"modules"`
}

// LoadEnvironment reads a StaticEnvironment from a YAML file.
func LoadEnvironment(path string) (*StaticEnvironment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}
	return ParseEnvironment(data)
}

// ParseEnvironment decodes a StaticEnvironment from YAML.
func ParseEnvironment(data []byte) (*StaticEnvironment, error) {
	env := &StaticEnvironment{}
	if err := yaml.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return env, nil
}

// Extension implements Environment.
func (e *StaticEnvironment) Extension(name string) (string, bool) {
	v, ok := e.Extensions[name]
	return v, ok
}

// Function implements Environment.
func (e *StaticEnvironment) Function(name string) bool {
	for _, f := range e.Functions {
		if f == name {
			return true
		}
	}
	return false
}

// Setting implements Environment.
func (e *StaticEnvironment) Setting(name string) (string, bool) {
	v, ok := e.Settings[name]
	return v, ok
}

// Module implements Environment.
func (e *StaticEnvironment) Module(id string) (bool, string, bool) {
	m, ok := e.Modules[id]
	return m.Active, m.Version, ok
}

// SettingsLookup resolves a setting. ok is false when the setting is unknown.
type SettingsLookup func(name string) (value string, ok bool)

// ModuleLookup resolves a sibling module.
type ModuleLookup func(id string) (active bool, version string, ok bool)

// overlay consults its lookups before falling back to the base environment.
type overlay struct {
	Environment
	settings SettingsLookup
	modules  ModuleLookup
}

// WithSettings returns env with settings resolved by lookup first.
func WithSettings(env Environment, lookup SettingsLookup) Environment {
	return &overlay{Environment: env, settings: lookup}
}

// WithModules returns env with sibling modules resolved by lookup first.
func WithModules(env Environment, lookup ModuleLookup) Environment {
	return &overlay{Environment: env, modules: lookup}
}

func (o *overlay) Setting(name string) (string, bool) {
	if o.settings != nil {
		if v, ok := o.settings(name); ok {
			return v, true
		}
	}
	if o.Environment == nil {
		return "", false
	}
	return o.Environment.Setting(name)
}

func (o *overlay) Module(id string) (bool, string, bool) {
	if o.modules != nil {
		if active, v, ok := o.modules(id); ok {
			return active, v, true
		}
	}
	if o.Environment == nil {
		return false, "", false
	}
	return o.Environment.Module(id)
}

func (o *overlay) Extension(name string) (string, bool) {
	if o.Environment == nil {
		return "", false
	}
	return o.Environment.Extension(name)
}

func (o *overlay) Function(name string) bool {
	if o.Environment == nil {
		return false
	}
	return o.Environment.Function(name)
}
