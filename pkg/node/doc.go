// Package node implements the functionality tree and its lifecycle.
//
// A node type embeds Base and opts into behaviour by implementing capability
// interfaces:
//
//	type Quotes struct {
//		node.Base
//	}
//
//	func (q *Quotes) InitializeLocal(ctx context.Context) error { return nil }
//	func (q *Quotes) Setup(ctx context.Context) error           { return nil }
//
// A node is active when its own flag and every ancestor's flag are set, and
// any attached Gate is fulfilled. Disabled nodes are skipped together with
// their subtree.
//
// Lifecycle.Initialize walks the tree once the Readiness token is set:
// local initialization, hook registration, children in insertion order, then
// setup of active children. The first failure is returned as an
// *InitializationError and nothing is rolled back.
//
// Registry maps ids to constructors and builds each id at most once; Base
// resolves string children through it.
package node
