package dependencies

// Checker evaluates one category of environment condition.
type Checker interface {
	// ID identifies the checker within a handler. Ids containing
	// OptionalMarker mark optional checkers.
	ID() string

	// Kind returns the category of descriptors the checker evaluates.
	Kind() Kind

	// Descriptors returns the declared dependencies.
	Descriptors() []Descriptor

	// MissingDependencies returns unmet descriptors keyed by descriptor key.
	// An empty map means every dependency is met.
	MissingDependencies() map[string]Missing
}

// probe looks up a descriptor's actual value. present is false when the
// dependency does not exist at all.
type probe func(d Descriptor) (actual string, present bool)

// checker is the shared implementation behind the four built-in kinds.
type checker struct {
	id          string
	kind        Kind
	env         Environment
	descriptors []Descriptor
	probe       probe
	absent      string
}

func newChecker(id string, kind Kind, env Environment, descriptors []Descriptor) checker {
	ds := make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		d.Kind = kind
		ds[i] = d
	}
	return checker{id: id, kind: kind, env: env, descriptors: ds}
}

// ID implements Checker.
func (c *checker) ID() string {
	return c.id
}

// Kind implements Checker.
func (c *checker) Kind() Kind {
	return c.kind
}

// Descriptors implements Checker.
func (c *checker) Descriptors() []Descriptor {
	out := make([]Descriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}

// MissingDependencies implements Checker.
func (c *checker) MissingDependencies() map[string]Missing {
	missing := make(map[string]Missing)
	for _, d := range c.descriptors {
		actual, present := c.probe(d)

		if d.Predicate != "" {
			ok, err := evalPredicate(d, actual, present)
			if err != nil {
				missing[d.Key] = Missing{Expected: d.Predicate, Actual: err.Error()}
			} else if !ok {
				missing[d.Key] = Missing{Expected: d.Predicate, Actual: describe(actual, present, c.absent)}
			}
			continue
		}

		if !present {
			missing[d.Key] = Missing{Expected: d.want(presentLabel(c.kind)), Actual: c.absent}
			continue
		}
		if d.Expected == "" {
			continue
		}
		ok, err := satisfies(actual, d.Expected, d.mode())
		if err != nil {
			missing[d.Key] = Missing{Expected: d.want(""), Actual: err.Error()}
			continue
		}
		if !ok {
			missing[d.Key] = Missing{Expected: d.want(""), Actual: actual}
		}
	}
	return missing
}

func describe(actual string, present bool, absent string) string {
	if !present {
		return absent
	}
	return actual
}

func presentLabel(kind Kind) string {
	switch kind {
	case KindFunction:
		return "defined"
	case KindSetting:
		return "set"
	case KindModule:
		return "active"
	default:
		return "installed"
	}
}

// ExtensionChecker requires installed extensions, optionally at a minimum
// version.
type ExtensionChecker struct {
	checker
}

// NewExtensionChecker creates an extension checker.
func NewExtensionChecker(id string, env Environment, descriptors ...Descriptor) *ExtensionChecker {
	c := &ExtensionChecker{checker: newChecker(id, KindExtension, env, descriptors)}
	c.absent = "not installed"
	c.probe = func(d Descriptor) (string, bool) {
		return c.env.Extension(d.Key)
	}
	return c
}

// FunctionChecker requires named functions to be available.
type FunctionChecker struct {
	checker
}

// NewFunctionChecker creates a function checker. Expected values are ignored.
func NewFunctionChecker(id string, env Environment, descriptors ...Descriptor) *FunctionChecker {
	c := &FunctionChecker{checker: newChecker(id, KindFunction, env, descriptors)}
	for i := range c.descriptors {
		c.descriptors[i].Expected = ""
	}
	c.absent = "undefined"
	c.probe = func(d Descriptor) (string, bool) {
		if c.env.Function(d.Key) {
			return "defined", true
		}
		return "", false
	}
	return c
}

// SettingChecker requires runtime settings to match exactly or meet a minimum.
type SettingChecker struct {
	checker
}

// NewSettingChecker creates a setting checker.
func NewSettingChecker(id string, env Environment, descriptors ...Descriptor) *SettingChecker {
	c := &SettingChecker{checker: newChecker(id, KindSetting, env, descriptors)}
	c.absent = "unset"
	c.probe = func(d Descriptor) (string, bool) {
		return c.env.Setting(d.Key)
	}
	return c
}

// ModuleChecker requires sibling modules to be active, optionally at a
// minimum version.
type ModuleChecker struct {
	checker
}

// NewModuleChecker creates a module checker.
func NewModuleChecker(id string, env Environment, descriptors ...Descriptor) *ModuleChecker {
	c := &ModuleChecker{checker: newChecker(id, KindModule, env, descriptors)}
	c.absent = "inactive"
	c.probe = func(d Descriptor) (string, bool) {
		active, v, ok := c.env.Module(d.Key)
		if !ok || !active {
			return "", false
		}
		return v, true
	}
	return c
}

// NewChecker creates the built-in checker for kind.
func NewChecker(id string, kind Kind, env Environment, descriptors ...Descriptor) (Checker, error) {
	switch kind {
	case KindExtension:
		return NewExtensionChecker(id, env, descriptors...), nil
	case KindFunction:
		return NewFunctionChecker(id, env, descriptors...), nil
	case KindSetting:
		return NewSettingChecker(id, env, descriptors...), nil
	case KindModule:
		return NewModuleChecker(id, env, descriptors...), nil
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

// UnknownKindError is returned for a descriptor kind with no built-in checker.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return "unknown dependency kind: " + string(e.Kind)
}
