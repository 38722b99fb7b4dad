// Package cache implements the multi-tier caching core: a bounded in-process
// tier (LocalCache), a shared network tier (SharedCache), the read-through
// composite that orchestrates both (TwoLevel), and the cluster-wide
// singleflight coordinator that collapses concurrent loads of the same key
// (StampedeGuard).
package cache

// Key is the immutable (namespace, id) pair every cache operation addresses.
// The wire form used by the shared tier is Namespace + "::" + ID.
type Key struct {
	Namespace string
	ID        string
}

// Wire renders the key the way the shared tier stores it on the network.
func (k Key) Wire() string {
	return k.Namespace + "::" + k.ID
}

// NamespacePrefix is the prefix every key in a namespace shares, used for
// bulk namespace invalidation.
func NamespacePrefix(namespace string) string {
	return namespace + "::"
}
