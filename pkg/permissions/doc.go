// Package permissions aggregates permissions and role grants over a node
// tree.
//
// Nodes implementing Bearer declare permission ids and granting rules. The
// Aggregator walks enabled Bearer children recursively: CollectPermissions
// returns the de-duplicated union in discovery order, CollectGrantingRules a
// permission to roles Matrix where the first definition of a permission wins.
// Both are memoized per node id in a cache.Store until Invalidate bumps the
// generation.
package permissions
