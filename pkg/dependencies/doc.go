// Package dependencies decides whether the environment allows a node to be
// active.
//
// A Checker evaluates one kind of Descriptor (extension, function, setting or
// module) against an Environment and reports what is missing. Handlers wrap
// checkers: a SingleHandler is fulfilled when its checker reports nothing
// missing, a MultiHandler when every checker whose id does not contain
// OptionalMarker is fulfilled. Service keeps handlers under a typed Key.
//
// Versions and sizes are compared with hashicorp/go-version and unit-aware
// parsing; a descriptor may instead carry a Starlark predicate such as
//
//	present and version(actual, "8.0") and not actual.startswith("9.")
package dependencies
