// Package heap implements the snapshot-scoped building blocks the walker
// consumes: the Leaf Filter, the Reverse Index Builder, and its on-disk
// cache. None of it is safe for concurrent use — the core is single-threaded
// by design (see the concurrency notes in the project's expanded spec).
package heap

import "sort"

// ReverseIndex maps a child object id to the ordered sequence of direct
// parent object ids that reference it via strong, non-leaf edges. Parent
// order for a given child is the order edges were discovered during the
// forward sweep; the walker depends on that order, so nothing downstream of
// BuildReverseIndex may re-sort or deduplicate it.
type ReverseIndex struct {
	parents map[uint64][]uint64
}

// NewReverseIndex wraps a parents map built by the Reverse Index Builder (or
// restored from the cache) as a ReverseIndex.
func NewReverseIndex(parents map[uint64][]uint64) *ReverseIndex {
	if parents == nil {
		parents = make(map[uint64][]uint64)
	}
	return &ReverseIndex{parents: parents}
}

// Parents returns the ordered parent list for child, or nil if child has no
// recorded inbound edges.
func (idx *ReverseIndex) Parents(child uint64) []uint64 {
	return idx.parents[child]
}

// Len returns the number of distinct children with at least one recorded
// parent.
func (idx *ReverseIndex) Len() int {
	return len(idx.parents)
}

// Entries exposes the raw map for iteration by the cache writer. Callers
// must not mutate the returned map.
func (idx *ReverseIndex) Entries() map[uint64][]uint64 {
	return idx.parents
}

// Equal reports whether two reverse indexes have the same keys mapping to
// the same per-key parent order — used by the cache round-trip test.
func (idx *ReverseIndex) Equal(other *ReverseIndex) bool {
	if idx.Len() != other.Len() {
		return false
	}
	for child, parents := range idx.parents {
		otherParents, ok := other.parents[child]
		if !ok || len(parents) != len(otherParents) {
			return false
		}
		for i, p := range parents {
			if otherParents[i] != p {
				return false
			}
		}
	}
	return true
}

// RootSet is the GC-Root Set: the set of strong-root object ids, plus the
// root kind for each, used only when the final report names the root. It
// also preserves the order ids were first observed in, since the Reverse
// Index Builder seeds its sweep queue from IDs and that seed order decides
// the first-observed-parent order recorded for every directly-rooted child.
type RootSet struct {
	kinds map[uint64]string
	order []uint64
}

// NewRootSet builds a RootSet from id-to-kind-name pairs. Since a map
// carries no order of its own, IDs iterates it in ascending id order; callers
// that have a real enumeration order to preserve should use NewOrderedRootSet.
func NewRootSet(kinds map[uint64]string) *RootSet {
	if kinds == nil {
		kinds = make(map[uint64]string)
	}
	order := make([]uint64, 0, len(kinds))
	for id := range kinds {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return &RootSet{kinds: kinds, order: order}
}

// NewOrderedRootSet builds a RootSet from id-to-kind-name pairs plus the
// order those ids were first observed in (e.g. the oracle's own stable
// Roots enumeration order). order must list every key of kinds exactly
// once.
func NewOrderedRootSet(kinds map[uint64]string, order []uint64) *RootSet {
	if kinds == nil {
		kinds = make(map[uint64]string)
	}
	return &RootSet{kinds: kinds, order: order}
}

// IsRoot reports whether id is a strong GC root.
func (r *RootSet) IsRoot(id uint64) bool {
	_, ok := r.kinds[id]
	return ok
}

// Kind returns the root kind name for id, or "" if id is not a root.
func (r *RootSet) Kind(id uint64) string {
	return r.kinds[id]
}

// IDs returns every root id in the RootSet's preserved order.
func (r *RootSet) IDs() []uint64 {
	ids := make([]uint64, len(r.order))
	copy(ids, r.order)
	return ids
}
