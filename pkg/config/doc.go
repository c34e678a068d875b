// Package config turns declarative feature manifests into node trees.
//
// A manifest lists the features of an application as nodes: their children,
// declared permissions and granting rules, dependency checkers, hooks and
// deferred setup events. Manifests are written in YAML or CUE:
//
//	version: v1
//	root: shop
//	roles: [admin, editor]
//	nodes:
//	  - id: shop
//	    children: [quotes]
//	    permissions: [manage shop]
//	    rules:
//	      - {role: admin, type: all}
//	  - id: quotes
//	    dependencies:
//	      - id: plugins
//	        kind: extension
//	        requires:
//	          - {key: woocommerce, expected: "8.0"}
//
// ManifestLoader reads YAML files, single CUE files and CUE package
// directories. Validator checks a manifest in three layers (struct tags, the
// built-in CUE schema and referential integrity) and reports every problem
// as a ValidationError.
//
// Build registers one Feature per node with a node.Registry, gates each
// feature on a dependencies.MultiHandler, creates the scoped hook windows
// and resolves the root. The resulting Tree is initialized with a
// node.Lifecycle like any hand-written tree.
//
// AppConfig holds the settings of the featurekit command.
package config
